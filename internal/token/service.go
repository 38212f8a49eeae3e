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
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"
)

// CreateOptions carries the optional attributes of a new token
type CreateOptions struct {
	SessionIsAlgorithmic bool
	CodeChallenge        string
	CodeChallengeMethod  string
}

// Service issues and resolves opaque tokens
type Service struct {
	repo Repository
}

// NewService creates a token service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create mints a new random token of the given byte length, stores its
// hash, and returns the raw token value. The raw value is the only
// copy; it cannot be recovered from storage.
func (s *Service) Create(ctx context.Context, typ Type, sessionID string, length int, expiration time.Duration, opts CreateOptions) ([]byte, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	t := &Token{
		Hash:                 Hash(raw),
		Type:                 typ,
		SessionID:            sessionID,
		SessionIsAlgorithmic: opts.SessionIsAlgorithmic,
		CodeChallenge:        opts.CodeChallenge,
		CodeChallengeMethod:  opts.CodeChallengeMethod,
		ExpiresAt:            now.Add(expiration),
		CreatedAt:            now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return raw, nil
}

// Get resolves a raw token value, treating expired tokens as absent
func (s *Service) Get(ctx context.Context, typ Type, raw []byte) (*Token, error) {
	t, err := s.repo.Get(ctx, typ, Hash(raw))
	if err != nil {
		return nil, err
	}
	if t.IsExpired() {
		return nil, ErrTokenExpired
	}
	return t, nil
}

// GetAndDelete resolves and consumes a raw token in one step. Used for
// authorization codes, which are single use.
func (s *Service) GetAndDelete(ctx context.Context, typ Type, raw []byte) (*Token, error) {
	t, err := s.repo.GetAndDelete(ctx, typ, Hash(raw))
	if err != nil {
		return nil, err
	}
	if t.IsExpired() {
		return nil, ErrTokenExpired
	}
	return t, nil
}

// Delete removes a token by its raw value
func (s *Service) Delete(ctx context.Context, typ Type, raw []byte) error {
	return s.repo.Delete(ctx, typ, Hash(raw))
}

// DeleteBySessionID removes every token bound to a session
func (s *Service) DeleteBySessionID(ctx context.Context, sessionID string) error {
	return s.repo.DeleteBySessionID(ctx, sessionID)
}

// DeleteExpired removes a capped batch of expired tokens
func (s *Service) DeleteExpired(ctx context.Context, limit int) (int, error) {
	return s.repo.DeleteExpired(ctx, limit)
}

// Hash returns the SHA-256 digest stored in place of a token value
func Hash(raw []byte) []byte {
	h := sha256.Sum256(raw)
	return h[:]
}
