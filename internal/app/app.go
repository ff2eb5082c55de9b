// Package app wires the client's dependencies: durable storage, the
// transport client, the realtime channel, and the session, booking, and chat
// services. Everything is injected explicitly; nothing here is a singleton.
package app

import (
	"context"
	"fmt"

	"github.com/afrobizconnect/client-go/internal/api"
	bookingsvc "github.com/afrobizconnect/client-go/internal/app/services/booking"
	chatsvc "github.com/afrobizconnect/client-go/internal/app/services/chat"
	"github.com/afrobizconnect/client-go/internal/app/services/session"
	"github.com/afrobizconnect/client-go/internal/config"
	"github.com/afrobizconnect/client-go/internal/realtime"
	"github.com/afrobizconnect/client-go/internal/storage"
	"github.com/afrobizconnect/client-go/internal/storage/sqlite"
	"github.com/afrobizconnect/client-go/pkg/logger"
)

// Application is the assembled client core.
type Application struct {
	cfg   *config.Config
	log   *logger.Logger
	store storage.Store

	API      *api.Client
	Realtime *realtime.Manager
	Session  *session.Service
	Booking  *bookingsvc.Service
	Chat     *chatsvc.Service
}

// Option overrides a default dependency.
type Option func(*options)

type options struct {
	store  storage.Store
	logger *logger.Logger
}

// WithStore substitutes the durable store, e.g. storage.NewMemory in tests.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithLogger substitutes the root logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// New assembles the application from configuration.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = logger.New(logger.LoggingConfig{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			Output:     cfg.Logging.Output,
			FilePrefix: cfg.Logging.FilePrefix,
		})
	}

	store := o.store
	if store == nil {
		if cfg.Storage.Path != "" {
			var err error
			store, err = sqlite.Open(cfg.Storage.Path)
			if err != nil {
				return nil, fmt.Errorf("app: open storage: %w", err)
			}
		} else {
			store = storage.NewMemory()
		}
	}

	client, err := api.New(api.Config{
		BaseURL:    cfg.API.BaseURL,
		APIVersion: cfg.API.Version,
		Timeout:    cfg.API.Timeout,
		Storage:    store,
		Logger:     log.WithField("component", "api"),
	})
	if err != nil {
		return nil, err
	}

	rt, err := realtime.New(realtime.Config{
		URL:                  cfg.Realtime.URL,
		HandshakeTimeout:     cfg.Realtime.HandshakeTimeout,
		ReconnectBaseDelay:   cfg.Realtime.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Realtime.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		OutboxLimit:          cfg.Realtime.OutboxLimit,
		Logger:               log.WithField("component", "realtime"),
	})
	if err != nil {
		return nil, err
	}

	sessionSvc := session.New(client, store, log.WithField("component", "session"))
	bookingSvc := bookingsvc.New(client, log.WithField("component", "booking"))
	chatSvc := chatsvc.New(client, rt, log.WithField("component", "chat"))

	// The chat service needs the signed-in identity to attribute realtime
	// echoes; track it through the session observer.
	sessionSvc.Subscribe(func(snap session.Snapshot) {
		if snap.User != nil {
			chatSvc.SetUserID(snap.User.ID)
		} else {
			chatSvc.SetUserID("")
		}
	})

	return &Application{
		cfg:      cfg,
		log:      log,
		store:    store,
		API:      client,
		Realtime: rt,
		Session:  sessionSvc,
		Booking:  bookingSvc,
		Chat:     chatSvc,
	}, nil
}

// Run restores the session and, when a user is signed in, brings the
// realtime channel up. It returns once startup is complete.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Session.Initialize(ctx); err != nil {
		return fmt.Errorf("app: restore session: %w", err)
	}
	if a.Session.IsAuthenticated() {
		if err := a.ConnectRealtime(ctx); err != nil {
			// The channel retries on its own; startup does not block on it.
			a.log.WithError(err).Warn("realtime channel unavailable at startup")
		}
	}
	return nil
}

// ConnectRealtime dials the realtime channel with the current access token.
func (a *Application) ConnectRealtime(ctx context.Context) error {
	token, err := a.store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("app: no access token for realtime channel: %w", err)
	}
	return a.Realtime.Connect(ctx, token)
}

// Close releases every resource.
func (a *Application) Close() error {
	a.Chat.Close()
	if err := a.Realtime.Close(); err != nil {
		a.log.WithError(err).Warn("close realtime channel")
	}
	return a.store.Close()
}
