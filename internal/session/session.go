// Copyright 2026 The Gatehouse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrConcurrentUpdate = errors.New("session modified concurrently")
)

// Type distinguishes the kinds of sessions the server issues
type Type string

const (
	// TypeRoot is the SSO session established by login, bound to the cookie
	TypeRoot Type = "root"
	// TypeOpenIDConnect is a client session descended from a root session
	TypeOpenIDConnect Type = "openidconnect"
	// TypeM2M is a machine-to-machine session with no root parent
	TypeM2M Type = "m2m"
	// TypeAnonymous is an algorithmic session that is never persisted
	TypeAnonymous Type = "anonymous"
)

// Session is the central state object. Root sessions carry the SSO
// login state; openidconnect sessions are per-client children of a
// root session and back issued tokens.
type Session struct {
	ID       string
	ParentID string
	Type     Type

	CreatedAt  time.Time
	ModifiedAt time.Time
	ExpiresAt  time.Time
	// MaxExpiresAt caps sliding expiration; zero means uncapped
	MaxExpiresAt time.Time
	// TouchExtension is how far a touch slides ExpiresAt into the future
	TouchExtension time.Duration

	// TrackID correlates all sessions of one browser, 16 bytes
	TrackID []byte

	Credentials    Credentials
	Authentication Authentication
	Authorization  Authorization
	OAuth2         OAuth2
	Cookie         Cookie
	Batman         Batman
}

// Credentials identifies the authenticated subject
type Credentials struct {
	ID         string
	Username   string
	Email      string
	Phone      string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
	Custom     map[string]any
}

// Authentication records how the subject logged in
type Authentication struct {
	LoginDescriptor      string
	LoginFactors         []string
	AvailableFactors     []string
	ExternalLoginOptions map[string]string
	TOTPSet              bool

	// Set on impersonated sessions only
	ImpersonatorSessionID     string
	ImpersonatorCredentialsID string
}

// Authorization carries the resolved tenant and resource grants
type Authorization struct {
	AssignedTenants []string
	// Authz maps "*" and each tenant to granted resource identifiers
	Authz map[string][]string
}

// OAuth2 carries per-client grant state on openidconnect sessions
type OAuth2 struct {
	ClientID    string
	Scope       []string
	Nonce       string
	RedirectURI string
	PKCE        string
	// AccessToken holds the plaintext access token of cookie-scoped
	// sessions so the introspection proxy can forward it as a Bearer
	// header. Stored encrypted at rest.
	AccessToken string
}

// Cookie links a root session to its session cookie
type Cookie struct {
	SessionCookieID []byte
	DomainID        string
}

// Batman holds the basic-auth forwarding token
type Batman struct {
	Token []byte
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// IsAlgorithmic reports whether the session exists only as an
// encrypted serialization and is never stored
func (s *Session) IsAlgorithmic() bool {
	return s.Type == TypeAnonymous
}

// IsAnonymous reports whether the session has no authenticated subject
func (s *Session) IsAnonymous() bool {
	return s.Type == TypeAnonymous
}

// Repository defines the interface for session persistence
type Repository interface {
	// Create creates a new session
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Update persists the session if its stored modified_at still
	// matches expectedModifiedAt, otherwise returns ErrConcurrentUpdate
	Update(ctx context.Context, session *Session, expectedModifiedAt time.Time) error

	// Delete deletes a session
	Delete(ctx context.Context, sessionID string) error

	// ListChildren lists sessions whose parent is the given session
	ListChildren(ctx context.Context, parentID string) ([]*Session, error)

	// ListByCredentialsID lists sessions belonging to a subject
	ListByCredentialsID(ctx context.Context, credentialsID string) ([]*Session, error)

	// DeleteExpired deletes up to limit expired sessions and reports
	// how many were removed
	DeleteExpired(ctx context.Context, limit int) (int, error)
}
