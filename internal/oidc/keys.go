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

package oidc

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound indicates no active signing key exists yet
var ErrKeyNotFound = errors.New("signing key not found")

// Key is a stored ID token signing key. The private key is encrypted
// at rest; the public key is published through the JWKS endpoint for
// as long as issued tokens may still carry its kid.
type Key struct {
	ID                  string
	Algorithm           string
	PublicKeyPEM        string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// KeyRepository defines the interface for signing key persistence
type KeyRepository interface {
	// Create stores a new key
	Create(ctx context.Context, key *Key) error

	// GetActiveKey retrieves the newest non-expired key
	GetActiveKey(ctx context.Context) (*Key, error)

	// ListValidKeys retrieves all non-expired keys, newest first
	ListValidKeys(ctx context.Context) ([]*Key, error)
}
