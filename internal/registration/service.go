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

package registration

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/credentials/builtin"
	"github.com/gatehouse/gatehouse/internal/tenant"
)

// Service manages the invitation lifecycle. Invitation tokens carry
// the registration ID encrypted with AES-GCM, so a token cannot be
// forged or redirected to another registration.
type Service struct {
	repo       Repository
	provider   *builtin.Provider
	tenants    *tenant.Service
	auditLog   audit.Logger
	key        []byte
	expiration time.Duration
}

// NewService creates a registration service
func NewService(repo Repository, provider *builtin.Provider, tenants *tenant.Service, auditLog audit.Logger, key []byte, expiration time.Duration) *Service {
	return &Service{
		repo:       repo,
		provider:   provider,
		tenants:    tenants,
		auditLog:   auditLog,
		key:        key,
		expiration: expiration,
	}
}

// Invite creates a pending registration for an email address within a
// tenant and returns the invitation token
func (s *Service) Invite(ctx context.Context, tenantID, email, invitedBy string) (string, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	reg := &Registration{
		ID:        uuid.New().String(),
		Email:     email,
		Tenant:    tenantID,
		InvitedBy: invitedBy,
		ExpiresAt: now.Add(s.expiration),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		return "", err
	}

	token, err := s.sealToken(reg.ID)
	if err != nil {
		return "", err
	}
	s.auditLog.Log(ctx, audit.Event{
		Type:          audit.TypeRegistration,
		CredentialsID: invitedBy,
		Tenants:       []string{tenantID},
		Metadata:      map[string]any{"email": email, "action": "invited"},
	})
	return token, nil
}

// Get resolves an invitation token to its pending registration
func (s *Service) Get(ctx context.Context, token string) (*Registration, error) {
	id, err := s.openToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.IsExpired() {
		return nil, ErrRegistrationExpired
	}
	return reg, nil
}

// Complete finishes a registration: the new user gets built-in
// credentials, is assigned to the invited tenant, and the pending
// registration is consumed
func (s *Service) Complete(ctx context.Context, token, username, password string) (string, error) {
	reg, err := s.Get(ctx, token)
	if err != nil {
		return "", err
	}

	credentialsID, err := s.provider.Create(ctx, username, reg.Email, password)
	if err != nil {
		return "", fmt.Errorf("failed to create credentials: %w", err)
	}
	if err := s.tenants.AssignCredentials(ctx, reg.Tenant, credentialsID); err != nil {
		return "", fmt.Errorf("failed to assign tenant: %w", err)
	}
	if err := s.repo.Delete(ctx, reg.ID); err != nil {
		return "", err
	}

	s.auditLog.Log(ctx, audit.Event{
		Type:          audit.TypeRegistration,
		CredentialsID: credentialsID,
		Tenants:       []string{reg.Tenant},
		Metadata:      map[string]any{"email": reg.Email, "action": "completed"},
	})
	return credentialsID, nil
}

// DeleteExpired removes a capped batch of expired registrations
func (s *Service) DeleteExpired(ctx context.Context, limit int) (int, error) {
	return s.repo.DeleteExpired(ctx, limit)
}

func (s *Service) sealToken(id string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(id), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Service) openToken(token string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", ErrInvalidToken
	}
	plaintext, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plaintext), nil
}
