// Package storage defines the durable local key-value store shared by the
// session and transport layers. The session service is the only writer of the
// auth keys; the transport client reads them. Clearing every session key is
// the definition of "logged out".
package storage

import (
	"context"
	"errors"
)

// Conceptual keys. The string values match the mobile client's storage keys
// so a migrated device keeps its session.
const (
	KeyAccessToken  = "@afrobiz_access_token"
	KeyRefreshToken = "@afrobiz_refresh_token"
	KeyTokenExpiry  = "@afrobiz_token_expiry"
	KeyUser         = "@afrobiz_user"
	KeyFirstLaunch  = "@afrobiz_first_launch"
	KeyBiometric    = "@afrobiz_biometric_enabled"
)

// SessionKeys are the keys removed on sign-out. KeyFirstLaunch survives so a
// returning, logged-out user is not shown onboarding again.
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry, KeyUser}

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetMulti writes all pairs atomically. Token rotation depends on the
	// access/refresh pair never tearing.
	SetMulti(ctx context.Context, pairs map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
