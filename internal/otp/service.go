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

package otp

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Domain errors
var (
	ErrTOTPNotFound  = errors.New("totp secret not found")
	ErrTOTPNotActive = errors.New("totp not activated")
	ErrInvalidOTP    = errors.New("invalid one-time password")
)

const secretLength = 20

// Secret is a stored TOTP secret. Prepared secrets stay inactive
// until the user proves possession with a valid code.
type Secret struct {
	CredentialsID string
	Secret        []byte
	Active        bool
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// Repository defines the interface for TOTP secret persistence
type Repository interface {
	// Get retrieves the TOTP secret of a subject
	Get(ctx context.Context, credentialsID string) (*Secret, error)

	// Upsert stores or replaces the TOTP secret of a subject
	Upsert(ctx context.Context, secret *Secret) error

	// Delete removes the TOTP secret of a subject
	Delete(ctx context.Context, credentialsID string) error
}

// Service manages TOTP enrollment and verification
type Service struct {
	repo   Repository
	issuer string
}

// NewService creates a TOTP service. The issuer labels enrollment URLs
// in authenticator apps.
func NewService(repo Repository, issuer string) *Service {
	return &Service{repo: repo, issuer: issuer}
}

// HasActivatedTOTP reports whether the subject has an active TOTP
// factor
func (s *Service) HasActivatedTOTP(ctx context.Context, credentialsID string) (bool, error) {
	secret, err := s.repo.Get(ctx, credentialsID)
	if err == ErrTOTPNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return secret.Active, nil
}

// Prepare generates a fresh inactive secret and returns the base32
// value and otpauth URL for the enrollment QR code. An already active
// secret is left untouched.
func (s *Service) Prepare(ctx context.Context, credentialsID, username string) (string, string, error) {
	existing, err := s.repo.Get(ctx, credentialsID)
	if err != nil && err != ErrTOTPNotFound {
		return "", "", err
	}
	if existing != nil && existing.Active {
		return "", "", fmt.Errorf("totp already activated")
	}

	raw := make([]byte, secretLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	now := time.Now().UTC()
	if err := s.repo.Upsert(ctx, &Secret{
		CredentialsID: credentialsID,
		Secret:        raw,
		Active:        false,
		CreatedAt:     now,
		ModifiedAt:    now,
	}); err != nil {
		return "", "", err
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	otpauth := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(s.issuer), url.PathEscape(username), encoded, url.QueryEscape(s.issuer))
	return encoded, otpauth, nil
}

// Activate turns on a prepared secret once the user submits a valid
// code generated from it
func (s *Service) Activate(ctx context.Context, credentialsID, code string) error {
	secret, err := s.repo.Get(ctx, credentialsID)
	if err != nil {
		return err
	}
	if !VerifyTOTP(secret.Secret, code, time.Now()) {
		return ErrInvalidOTP
	}
	secret.Active = true
	secret.ModifiedAt = time.Now().UTC()
	return s.repo.Upsert(ctx, secret)
}

// Deactivate removes the subject's TOTP factor
func (s *Service) Deactivate(ctx context.Context, credentialsID string) error {
	return s.repo.Delete(ctx, credentialsID)
}

// Verify checks a login code against the subject's active secret
func (s *Service) Verify(ctx context.Context, credentialsID, code string) error {
	secret, err := s.repo.Get(ctx, credentialsID)
	if err != nil {
		return err
	}
	if !secret.Active {
		return ErrTOTPNotActive
	}
	if !VerifyTOTP(secret.Secret, code, time.Now()) {
		return ErrInvalidOTP
	}
	return nil
}
