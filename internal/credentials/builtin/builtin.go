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

// Package builtin is the database-backed credentials provider.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse/gatehouse/internal/credentials"
)

// ProviderType is the type prefix of built-in credentials IDs
const ProviderType = "builtin"

// User is a locally stored account
type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	FullName     string
	PasswordHash string
	Suspended    bool
	Custom       map[string]any
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// Repository defines the interface for built-in user persistence
type Repository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// Get retrieves a user by local ID
	Get(ctx context.Context, id string) (*User, error)

	// GetByIdent retrieves a user by username or email
	GetByIdent(ctx context.Context, ident string) (*User, error)

	// Update updates user information
	Update(ctx context.Context, user *User) error

	// UpdatePassword replaces a user's password hash
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// Delete removes a user
	Delete(ctx context.Context, id string) error

	// Count returns the number of users
	Count(ctx context.Context) (int, error)

	// List pages through users ordered by creation time
	List(ctx context.Context, offset, limit int) ([]*User, error)

	// Search lists users whose username, email or full name contains
	// the filter. An empty filter lists everyone.
	Search(ctx context.Context, filter string) ([]*User, error)
}

// Provider serves credentials from the local database
type Provider struct {
	providerID string
	repo       Repository
	hasher     *PasswordHasher
}

// NewProvider creates a built-in credentials provider
func NewProvider(providerID string, repo Repository, hasher *PasswordHasher) *Provider {
	return &Provider{providerID: providerID, repo: repo, hasher: hasher}
}

func (p *Provider) Type() string       { return ProviderType }
func (p *Provider) ProviderID() string { return p.providerID }

// Get retrieves a record by its provider-local ID
func (p *Provider) Get(ctx context.Context, localID string) (*credentials.Record, error) {
	u, err := p.repo.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	return p.toRecord(u), nil
}

// Locate finds a record by username or email
func (p *Provider) Locate(ctx context.Context, ident string) (*credentials.Record, error) {
	u, err := p.repo.GetByIdent(ctx, ident)
	if err != nil {
		return nil, err
	}
	return p.toRecord(u), nil
}

// Count returns the number of stored users
func (p *Provider) Count(ctx context.Context) (int, error) {
	return p.repo.Count(ctx)
}

// List pages through stored users as records
func (p *Provider) List(ctx context.Context, offset, limit int) ([]*credentials.Record, error) {
	users, err := p.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	records := make([]*credentials.Record, len(users))
	for i, u := range users {
		records[i] = p.toRecord(u)
	}
	return records, nil
}

// Search lists stored users matching the filter as records
func (p *Provider) Search(ctx context.Context, filter string) ([]*credentials.Record, error) {
	users, err := p.repo.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	records := make([]*credentials.Record, len(users))
	for i, u := range users {
		records[i] = p.toRecord(u)
	}
	return records, nil
}

// LoginDescriptors lists the login methods of a stored user. Built-in
// accounts log in with their password; an activated TOTP factor is
// enforced by the login flow on top of the descriptor.
func (p *Provider) LoginDescriptors(ctx context.Context, localID string) ([]credentials.LoginDescriptor, error) {
	u, err := p.repo.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, nil
	}
	return []credentials.LoginDescriptor{{
		ID:      "default",
		Label:   "Password login",
		Factors: []string{"password"},
	}}, nil
}

// Authenticate verifies a password for a provider-local ID
func (p *Provider) Authenticate(ctx context.Context, localID, password string) error {
	u, err := p.repo.Get(ctx, localID)
	if err != nil {
		return credentials.ErrInvalidCredentials
	}
	if u.PasswordHash == "" {
		return credentials.ErrInvalidCredentials
	}
	ok, err := p.hasher.Verify(password, u.PasswordHash)
	if err != nil || !ok {
		return credentials.ErrInvalidCredentials
	}
	return nil
}

// Create provisions a new user with an optional password and returns
// its prefixed credentials ID
func (p *Provider) Create(ctx context.Context, username, email, password string) (string, error) {
	now := time.Now().UTC()
	u := &User{
		ID:         uuid.New().String(),
		Username:   username,
		Email:      email,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if password != "" {
		hash, err := p.hasher.Hash(password)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	if err := p.repo.Create(ctx, u); err != nil {
		return "", err
	}
	return credentials.FormatID(ProviderType, p.providerID, u.ID), nil
}

// SetPassword replaces a user's password
func (p *Provider) SetPassword(ctx context.Context, localID, password string) error {
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return p.repo.UpdatePassword(ctx, localID, hash)
}

// HasPassword reports whether a password factor exists for the user
func (p *Provider) HasPassword(ctx context.Context, localID string) (bool, error) {
	u, err := p.repo.Get(ctx, localID)
	if err != nil {
		return false, err
	}
	return u.PasswordHash != "", nil
}

func (p *Provider) toRecord(u *User) *credentials.Record {
	created, modified := u.CreatedAt, u.ModifiedAt
	return &credentials.Record{
		ID:         credentials.FormatID(ProviderType, p.providerID, u.ID),
		Username:   u.Username,
		Email:      u.Email,
		Phone:      u.Phone,
		FullName:   u.FullName,
		Suspended:  u.Suspended,
		CreatedAt:  &created,
		ModifiedAt: &modified,
		Custom:     u.Custom,
	}
}
