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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAlgorithmicSession is returned when a serialized session
// fails to decrypt or decode
var ErrInvalidAlgorithmicSession = errors.New("invalid algorithmic session")

// algorithmicPayload is the wire form of an anonymous session. Only
// the fields an anonymous session can carry are serialized.
type algorithmicPayload struct {
	ID            string              `json:"id"`
	CreatedAt     int64               `json:"iat"`
	ExpiresAt     int64               `json:"exp"`
	TrackID       []byte              `json:"track_id,omitempty"`
	CredentialsID string              `json:"cid"`
	ClientID      string              `json:"client_id"`
	Scope         []string            `json:"scope,omitempty"`
	Tenants       []string            `json:"tenants,omitempty"`
	Authz         map[string][]string `json:"authz,omitempty"`
}

// CreateAnonymousSession builds an anonymous session without touching
// storage. The caller serializes it into tokens; it has no stored row
// and cannot be looked up by ID.
func (s *Service) CreateAnonymousSession(ctx context.Context, fields ...Field) *Session {
	now := time.Now().UTC()
	expiration := s.cfg.AnonymousExpiration
	if expiration <= 0 {
		expiration = s.cfg.Expiration
	}
	sess := &Session{
		ID:         uuid.New().String(),
		Type:       TypeAnonymous,
		CreatedAt:  now,
		ModifiedAt: now,
		ExpiresAt:  now.Add(expiration),
	}
	sess.Apply(fields...)
	if sess.TrackID == nil {
		sess.TrackID = newTrackID()
	}
	return sess
}

// Serialize encrypts an algorithmic session with AES-GCM. The output
// is nonce-prefixed ciphertext; GCM authentication makes tampering
// detectable on deserialize.
func (s *Service) Serialize(sess *Session) ([]byte, error) {
	if !sess.IsAlgorithmic() {
		return nil, fmt.Errorf("session %s is not algorithmic", sess.ID)
	}
	payload := algorithmicPayload{
		ID:            sess.ID,
		CreatedAt:     sess.CreatedAt.Unix(),
		ExpiresAt:     sess.ExpiresAt.Unix(),
		TrackID:       sess.TrackID,
		CredentialsID: sess.Credentials.ID,
		ClientID:      sess.OAuth2.ClientID,
		Scope:         sess.OAuth2.Scope,
		Tenants:       sess.Authorization.AssignedTenants,
		Authz:         sess.Authorization.Authz,
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	block, err := aes.NewCipher(s.cfg.AlgorithmicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Deserialize decrypts a serialized algorithmic session. Expired
// sessions are rejected the same way stored expired sessions are.
func (s *Service) Deserialize(data []byte) (*Session, error) {
	block, err := aes.NewCipher(s.cfg.AlgorithmicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidAlgorithmicSession
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidAlgorithmicSession
	}

	var payload algorithmicPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, ErrInvalidAlgorithmicSession
	}

	sess := &Session{
		ID:        payload.ID,
		Type:      TypeAnonymous,
		CreatedAt: time.Unix(payload.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(payload.ExpiresAt, 0).UTC(),
		TrackID:   payload.TrackID,
		Credentials: Credentials{
			ID: payload.CredentialsID,
		},
		Authorization: Authorization{
			AssignedTenants: payload.Tenants,
			Authz:           payload.Authz,
		},
		OAuth2: OAuth2{
			ClientID: payload.ClientID,
			Scope:    payload.Scope,
		},
	}
	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}
	return sess, nil
}
