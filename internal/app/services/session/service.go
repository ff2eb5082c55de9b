// Package session owns the authenticated identity: sign-in and sign-up flows,
// durable persistence of the token pair and user record, profile mutation,
// and the observable session snapshot the UI layer renders from.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	jwt "github.com/dgrijalva/jwt-go"

	"github.com/afrobizconnect/client-go/internal/api"
	"github.com/afrobizconnect/client-go/internal/app/domain/user"
	"github.com/afrobizconnect/client-go/internal/storage"
	"github.com/afrobizconnect/client-go/pkg/logger"
)

// ErrNotAuthenticated is returned by operations that require a signed-in user.
var ErrNotAuthenticated = errors.New("session: not authenticated")

const minPasswordLength = 8

// Snapshot is an immutable view of session state handed to observers.
type Snapshot struct {
	User          *user.User
	Authenticated bool
	Loading       bool
	FirstLaunch   bool
	Err           error
}

// Service manages the session lifecycle.
type Service struct {
	api   *api.Client
	store storage.Store
	log   *logger.Logger

	mu          sync.RWMutex
	current     *user.User
	loading     bool
	firstLaunch bool
	lastErr     error
	subs        map[int]func(Snapshot)
	nextSub     int
}

// New constructs a session service and registers it for terminal auth
// failures on the transport client.
func New(client *api.Client, store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("session")
	}
	s := &Service{
		api:         client,
		store:       store,
		log:         log,
		firstLaunch: true,
		subs:        make(map[int]func(Snapshot)),
	}
	client.OnAuthFailure(s.handleAuthFailure)
	return s
}

// Subscribe registers an observer notified on every session change. The
// returned function removes the observer.
func (s *Service) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Initialize restores a persisted session. A stored user becomes current
// immediately; the record is then revalidated against the server best-effort
// so a revoked session surfaces through the auth-failure path rather than
// blocking startup.
func (s *Service) Initialize(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	launched, err := s.store.Get(ctx, storage.KeyFirstLaunch)
	firstLaunch := true
	if err == nil && launched == "false" {
		firstLaunch = false
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.WithError(err).Warn("read first-launch flag")
	}

	raw, err := s.store.Get(ctx, storage.KeyUser)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).Warn("read stored user")
		}
		s.mu.Lock()
		s.firstLaunch = firstLaunch
		s.mu.Unlock()
		s.notify()
		return nil
	}

	var stored user.User
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.WithError(err).Warn("stored user is corrupt, discarding session")
		if clearErr := s.api.ClearTokens(ctx); clearErr != nil {
			s.log.WithError(clearErr).Warn("clear corrupt session")
		}
		s.mu.Lock()
		s.firstLaunch = firstLaunch
		s.mu.Unlock()
		s.notify()
		return nil
	}

	s.mu.Lock()
	s.current = &stored
	s.firstLaunch = firstLaunch
	s.mu.Unlock()
	s.notify()

	// Revalidation rides the normal authed path: an expired access token
	// triggers the transport client's refresh, and a dead refresh token
	// lands in handleAuthFailure.
	if fresh, err := s.fetchCurrentUser(ctx); err == nil {
		s.adoptUser(ctx, fresh)
	} else if !api.IsAuthFailed(err) {
		s.log.WithError(err).Debug("session revalidation deferred")
	}
	return nil
}

// SignIn authenticates with email and password.
func (s *Service) SignIn(ctx context.Context, creds user.Credentials) (*user.User, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return nil, s.fail(fmt.Errorf("session: email and password are required"))
	}

	s.setLoading(true)
	defer s.setLoading(false)

	env, err := s.api.Post(ctx, "/auth/login", creds, false)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.adoptAuthPayload(ctx, env)
}

// SignUp registers a new account. Password rules are enforced locally before
// the request goes out.
func (s *Service) SignUp(ctx context.Context, reg user.Registration) (*user.User, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)

	if reg.Email == "" || reg.FirstName == "" || reg.LastName == "" {
		return nil, s.fail(fmt.Errorf("session: name and email are required"))
	}
	if len(reg.Password) < minPasswordLength {
		return nil, s.fail(fmt.Errorf("session: password must be at least %d characters", minPasswordLength))
	}
	if reg.Password != reg.ConfirmPassword {
		return nil, s.fail(fmt.Errorf("session: passwords do not match"))
	}
	if reg.UserType == "" {
		reg.UserType = user.TypeCustomer
	}
	if reg.UserType == user.TypeBusiness && strings.TrimSpace(reg.BusinessName) == "" {
		return nil, s.fail(fmt.Errorf("session: business name is required for business accounts"))
	}

	s.setLoading(true)
	defer s.setLoading(false)

	env, err := s.api.Post(ctx, "/auth/register", reg, false)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.adoptAuthPayload(ctx, env)
}

// SignOut ends the session. The server call is best-effort: local state is
// cleared unconditionally so a dead network can never keep a user signed in.
func (s *Service) SignOut(ctx context.Context) error {
	if _, err := s.api.Post(ctx, "/auth/logout", nil, true); err != nil {
		s.log.WithError(err).Warn("server logout failed, clearing local session anyway")
	}

	clearErr := s.api.ClearTokens(ctx)

	s.mu.Lock()
	s.current = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
	return clearErr
}

// UpdateProfile replaces the customer profile of the current user.
func (s *Service) UpdateProfile(ctx context.Context, profile user.Profile) (*user.User, error) {
	if s.CurrentUser() == nil {
		return nil, ErrNotAuthenticated
	}
	env, err := s.api.Patch(ctx, "/auth/profile", profile, true)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.adoptUserEnvelope(ctx, env)
}

// UpdateBusinessProfile replaces the business listing of the current user.
func (s *Service) UpdateBusinessProfile(ctx context.Context, business user.BusinessProfile) (*user.User, error) {
	current := s.CurrentUser()
	if current == nil {
		return nil, ErrNotAuthenticated
	}
	if current.UserType != user.TypeBusiness {
		return nil, fmt.Errorf("session: account is not a business account")
	}
	env, err := s.api.Patch(ctx, "/auth/business-profile", business, true)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.adoptUserEnvelope(ctx, env)
}

// ChangePassword rotates the password for the signed-in user.
func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if s.CurrentUser() == nil {
		return ErrNotAuthenticated
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("session: password must be at least %d characters", minPasswordLength)
	}
	_, err := s.api.Post(ctx, "/auth/change-password", map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}, true)
	return err
}

// RequestPasswordReset asks the server to mail a reset token.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("session: email is required")
	}
	_, err := s.api.Post(ctx, "/auth/forgot-password", map[string]string{"email": email}, false)
	return err
}

// ResetPassword completes a password reset with the mailed token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return fmt.Errorf("session: reset token is required")
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("session: password must be at least %d characters", minPasswordLength)
	}
	_, err := s.api.Post(ctx, "/auth/reset-password", map[string]string{
		"token":    token,
		"password": newPassword,
	}, false)
	return err
}

// VerifyEmail confirms the mailed verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session: verification token is required")
	}
	env, err := s.api.Post(ctx, "/auth/verify-email", map[string]string{"token": token}, true)
	if err != nil {
		return err
	}
	// Some deployments return the updated user record; adopt it when present.
	if env != nil && len(env.Data) > 0 {
		if updated, uerr := s.adoptUserEnvelope(ctx, env); uerr == nil && updated != nil {
			return nil
		}
	}
	if current := s.CurrentUser(); current != nil {
		clone := *current
		clone.EmailVerified = true
		s.adoptUser(ctx, &clone)
	}
	return nil
}

// ResendEmailVerification asks the server to mail a fresh verification token.
func (s *Service) ResendEmailVerification(ctx context.Context) error {
	if s.CurrentUser() == nil {
		return ErrNotAuthenticated
	}
	_, err := s.api.Post(ctx, "/auth/resend-verification", nil, true)
	return err
}

// UploadAvatar uploads a new avatar image and adopts the updated user record.
func (s *Service) UploadAvatar(ctx context.Context, fileName, contentType string, r io.Reader, onProgress func(float64)) (*user.User, error) {
	if s.CurrentUser() == nil {
		return nil, ErrNotAuthenticated
	}
	env, err := s.api.Upload(ctx, "/auth/upload-avatar", []api.File{{
		FieldName:   "avatar",
		FileName:    fileName,
		ContentType: contentType,
		Reader:      r,
	}}, nil, onProgress)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.adoptUserEnvelope(ctx, env)
}

// MarkOnboardingComplete records that the first-launch experience has been
// shown. Calling it again is a no-op.
func (s *Service) MarkOnboardingComplete(ctx context.Context) error {
	s.mu.Lock()
	already := !s.firstLaunch
	s.firstLaunch = false
	s.mu.Unlock()
	if already {
		return nil
	}
	if err := s.store.Set(ctx, storage.KeyFirstLaunch, "false"); err != nil {
		return fmt.Errorf("session: persist onboarding flag: %w", err)
	}
	s.notify()
	return nil
}

// SetBiometricEnabled records the biometric unlock preference. It survives
// sign-out: the preference belongs to the device, not the session.
func (s *Service) SetBiometricEnabled(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return s.store.Set(ctx, storage.KeyBiometric, value)
}

// BiometricEnabled reports the stored biometric unlock preference.
func (s *Service) BiometricEnabled(ctx context.Context) bool {
	v, err := s.store.Get(ctx, storage.KeyBiometric)
	return err == nil && v == "true"
}

// CurrentUser returns the signed-in user, or nil.
func (s *Service) CurrentUser() *user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether a user is signed in.
func (s *Service) IsAuthenticated() bool {
	return s.CurrentUser() != nil
}

// IsLoading reports whether an auth operation is in flight.
func (s *Service) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// IsFirstLaunch reports whether onboarding has not yet completed.
func (s *Service) IsFirstLaunch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstLaunch
}

// LastError returns the most recent auth operation failure.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError discards the stored failure.
func (s *Service) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Service) fetchCurrentUser(ctx context.Context) (*user.User, error) {
	env, err := s.api.Get(ctx, "/auth/me", true)
	if err != nil {
		return nil, err
	}
	var u user.User
	if err := api.DecodeData(env, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) adoptAuthPayload(ctx context.Context, env *api.Envelope) (*user.User, error) {
	var payload user.AuthPayload
	if err := api.DecodeData(env, &payload); err != nil {
		return nil, s.fail(err)
	}
	if payload.Tokens.AccessToken == "" || payload.Tokens.RefreshToken == "" {
		return nil, s.fail(fmt.Errorf("session: auth response missing token pair"))
	}

	if err := s.persistSession(ctx, &payload.User, payload.Tokens); err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	s.current = &payload.User
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
	return &payload.User, nil
}

func (s *Service) adoptUserEnvelope(ctx context.Context, env *api.Envelope) (*user.User, error) {
	var u user.User
	if err := api.DecodeData(env, &u); err != nil {
		return nil, err
	}
	s.adoptUser(ctx, &u)
	return &u, nil
}

func (s *Service) adoptUser(ctx context.Context, u *user.User) {
	raw, err := json.Marshal(u)
	if err == nil {
		if err := s.store.Set(ctx, storage.KeyUser, string(raw)); err != nil {
			s.log.WithError(err).Warn("persist user record")
		}
	}
	s.mu.Lock()
	s.current = u
	s.mu.Unlock()
	s.notify()
}

// persistSession writes the token pair, its expiry, and the user record in
// one atomic batch so a crash can never leave tokens without a user.
func (s *Service) persistSession(ctx context.Context, u *user.User, tokens user.Tokens) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("session: marshal user: %w", err)
	}
	values := map[string]string{
		storage.KeyAccessToken:  tokens.AccessToken,
		storage.KeyRefreshToken: tokens.RefreshToken,
		storage.KeyUser:         string(raw),
	}
	if expiry := tokenExpiry(tokens); !expiry.IsZero() {
		values[storage.KeyTokenExpiry] = expiry.UTC().Format(time.RFC3339)
	}
	if err := s.store.SetMulti(ctx, values); err != nil {
		return fmt.Errorf("session: persist session: %w", err)
	}
	s.api.SetAccessToken(tokens.AccessToken)
	return nil
}

// tokenExpiry derives the access token deadline from the response, falling
// back to the JWT exp claim when the server omits expiresIn. The claim is
// read without signature verification; a client holds no verification key
// and only needs the timestamp.
func tokenExpiry(tokens user.Tokens) time.Time {
	if tokens.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokens.AccessToken, claims); err != nil {
		return time.Time{}
	}
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		return time.Unix(int64(exp), 0)
	}
	return time.Time{}
}

// handleAuthFailure runs when a token refresh fails terminally. Durable state
// is already cleared by the transport client; only the in-memory user and
// observers remain.
func (s *Service) handleAuthFailure() {
	s.mu.Lock()
	hadUser := s.current != nil
	s.current = nil
	s.lastErr = ErrNotAuthenticated
	s.mu.Unlock()
	if hadUser {
		s.log.Info("session ended after failed token refresh")
	}
	s.notify()
}

func (s *Service) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
	s.notify()
}

func (s *Service) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Service) notify() {
	s.mu.RLock()
	snap := Snapshot{
		User:          s.current,
		Authenticated: s.current != nil,
		Loading:       s.loading,
		FirstLaunch:   s.firstLaunch,
		Err:           s.lastErr,
	}
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(snap)
	}
}
