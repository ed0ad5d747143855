// Package store persists the client-side session mirror: bearer token, user
// snapshot, and the transient post-login flag. It is the single place that
// touches durable state, so the session logic can be tested against the
// in-memory implementation.
package store

import (
	"time"

	"github.com/weiki/usercenter-cli/internal/model"
)

// Store is the durable session mirror.
type Store interface {
	// Token returns the persisted bearer token, absent when missing or expired.
	Token() (string, bool)
	// SaveToken persists a token with its expiry.
	SaveToken(token string, expiresAt time.Time) error
	// User returns the persisted user snapshot, if any.
	User() (*model.User, bool)
	// SaveUser persists the user snapshot.
	SaveUser(u *model.User) error
	// LoginFlag returns the login timestamp if a login just happened.
	LoginFlag() (time.Time, bool)
	// SetLoginFlag marks a successful login for downstream silent-refresh logic.
	SetLoginFlag(at time.Time) error
	// ClearLoginFlag removes the flag once the post-login refresh ran.
	ClearLoginFlag() error
	// Clear wipes token, snapshot and flags.
	Clear() error
}

// state is the serialized mirror contents.
type state struct {
	Token    string      `json:"token,omitempty"`
	TokenExp time.Time   `json:"tokenExp,omitzero"`
	User     *model.User `json:"user,omitempty"`
	LoginAt  *time.Time  `json:"loginAt,omitempty"`
}

// token returns the stored token unless it has expired. A zero expiry means
// the issuer reported none, so the token never goes stale locally.
func (s *state) token(now time.Time) (string, bool) {
	if s.Token == "" {
		return "", false
	}
	if !s.TokenExp.IsZero() && now.After(s.TokenExp) {
		return "", false
	}
	return s.Token, true
}
