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
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	trackIDLength    = 16
	updateMaxRetries = 3
)

// TokenDeleter removes the tokens bound to a session when the session
// is deleted. Implemented by the token service.
type TokenDeleter interface {
	DeleteBySessionID(ctx context.Context, sessionID string) error
}

// Config holds session service defaults
type Config struct {
	Expiration          time.Duration
	TouchExtension      time.Duration
	MaximumAge          time.Duration
	AnonymousExpiration time.Duration
	// AlgorithmicKey encrypts serialized anonymous sessions, 32 bytes
	AlgorithmicKey []byte
}

// Service manages the session lifecycle
type Service struct {
	repo   Repository
	tokens TokenDeleter
	cfg    Config
}

// NewService creates a session service
func NewService(repo Repository, tokens TokenDeleter, cfg Config) *Service {
	return &Service{repo: repo, tokens: tokens, cfg: cfg}
}

// Create builds and persists a new session. For child sessions the
// track ID is inherited from the parent; root sessions get a fresh one.
// A zero expiration falls back to the configured default.
func (s *Service) Create(ctx context.Context, typ Type, parentID string, expiration time.Duration, fields ...Field) (*Session, error) {
	now := time.Now().UTC()
	if expiration <= 0 {
		expiration = s.cfg.Expiration
	}

	sess := &Session{
		ID:             uuid.New().String(),
		ParentID:       parentID,
		Type:           typ,
		CreatedAt:      now,
		ModifiedAt:     now,
		ExpiresAt:      now.Add(expiration),
		TouchExtension: s.cfg.TouchExtension,
	}
	if s.cfg.MaximumAge > 0 {
		sess.MaxExpiresAt = now.Add(s.cfg.MaximumAge)
	}
	sess.Apply(fields...)

	if parentID != "" && sess.TrackID == nil {
		parent, err := s.repo.Get(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent session: %w", err)
		}
		sess.TrackID = parent.TrackID
	}
	if sess.TrackID == nil {
		sess.TrackID = newTrackID()
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get retrieves a session, treating expired sessions as absent
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Update applies builder fields to a session and persists it. Stale
// writes are detected through modified_at and retried against a fresh
// copy, so concurrent updaters serialize rather than overwrite each
// other.
func (s *Service) Update(ctx context.Context, sessionID string, fields ...Field) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt < updateMaxRetries; attempt++ {
		sess, err := s.repo.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		expected := sess.ModifiedAt
		sess.Apply(fields...)
		sess.ModifiedAt = time.Now().UTC()

		err = s.repo.Update(ctx, sess, expected)
		if err == nil {
			return sess, nil
		}
		if err != ErrConcurrentUpdate {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		lastErr = err
	}
	return nil, lastErr
}

// Touch slides the session expiration forward. The extension never
// pushes past MaxExpiresAt and a shrink is never applied. Failures are
// logged and swallowed so a touch cannot break the request it rides on.
func (s *Service) Touch(ctx context.Context, sess *Session) {
	if sess.IsAlgorithmic() || sess.TouchExtension <= 0 {
		return
	}
	candidate := time.Now().UTC().Add(sess.TouchExtension)
	if !sess.MaxExpiresAt.IsZero() && candidate.After(sess.MaxExpiresAt) {
		candidate = sess.MaxExpiresAt
	}
	if !candidate.After(sess.ExpiresAt) {
		return
	}
	if _, err := s.Update(ctx, sess.ID, F(FieldExpiresAt, candidate)); err != nil {
		slog.WarnContext(ctx, "failed to touch session",
			slog.String("sid", sess.ID), slog.String("error", err.Error()))
		return
	}
	sess.ExpiresAt = candidate
}

// Delete removes a session, its descendants, and all tokens bound to
// any of them
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	children, err := s.repo.ListChildren(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to list child sessions: %w", err)
	}
	for _, child := range children {
		if err := s.Delete(ctx, child.ID); err != nil {
			return err
		}
	}
	if s.tokens != nil {
		if err := s.tokens.DeleteBySessionID(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session tokens: %w", err)
		}
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil && err != ErrSessionNotFound {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListByCredentialsID lists the stored sessions of a subject
func (s *Service) ListByCredentialsID(ctx context.Context, credentialsID string) ([]*Session, error) {
	return s.repo.ListByCredentialsID(ctx, credentialsID)
}

// DeleteExpired removes a capped batch of expired sessions
func (s *Service) DeleteExpired(ctx context.Context, limit int) (int, error) {
	return s.repo.DeleteExpired(ctx, limit)
}

func newTrackID() []byte {
	b := make([]byte, trackIDLength)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return b
}

// FormatTrackID renders a 16-byte track ID in 8-4-4-4-12 hex groups
func FormatTrackID(trackID []byte) string {
	if len(trackID) != trackIDLength {
		return ""
	}
	u, err := uuid.FromBytes(trackID)
	if err != nil {
		return ""
	}
	return u.String()
}
