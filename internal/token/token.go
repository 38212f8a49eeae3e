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

package token

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)

// Type identifies what a stored token is for
type Type string

const (
	// TypeAuthorizationCode is the single-use OAuth2 authorization code
	TypeAuthorizationCode Type = "oac"
	// TypeAccessToken is the opaque OAuth2 access token
	TypeAccessToken Type = "oat"
	// TypeRefreshToken is the opaque OAuth2 refresh token
	TypeRefreshToken Type = "ort"
	// TypeSessionCookie is the session cookie identifier
	TypeSessionCookie Type = "sci"
)

// Token is the stored record of an issued opaque token. Only the
// SHA-256 hash of the token value is persisted; the plaintext exists
// once, in the response that delivered it.
type Token struct {
	Hash      []byte
	Type      Type
	ExpiresAt time.Time
	CreatedAt time.Time

	// SessionID names the backing session. For algorithmic sessions it
	// holds the encrypted serialization instead of a stored session ID.
	SessionID            string
	SessionIsAlgorithmic bool

	// PKCE binding, authorization codes only
	CodeChallenge       string
	CodeChallengeMethod string
}

// IsExpired checks if the token has expired
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// Repository defines the interface for token persistence
type Repository interface {
	// Create stores a token record
	Create(ctx context.Context, token *Token) error

	// Get retrieves a token by type and hash
	Get(ctx context.Context, typ Type, hash []byte) (*Token, error)

	// GetAndDelete atomically retrieves and removes a token, so two
	// concurrent consumers cannot both succeed
	GetAndDelete(ctx context.Context, typ Type, hash []byte) (*Token, error)

	// Delete removes a token by type and hash
	Delete(ctx context.Context, typ Type, hash []byte) error

	// DeleteBySessionID removes all tokens bound to a session
	DeleteBySessionID(ctx context.Context, sessionID string) error

	// DeleteExpired deletes up to limit expired tokens and reports how
	// many were removed
	DeleteExpired(ctx context.Context, limit int) (int, error)
}
