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

// Package registration implements invitation-based self-registration.
package registration

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrRegistrationExpired  = errors.New("registration expired")
	ErrInvalidToken         = errors.New("invalid registration token")
)

// Registration is a pending invitation
type Registration struct {
	ID        string
	Email     string
	Tenant    string
	InvitedBy string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the registration has expired
func (r *Registration) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// Repository defines the interface for registration persistence
type Repository interface {
	// Create stores a pending registration
	Create(ctx context.Context, registration *Registration) error

	// Get retrieves a registration by ID
	Get(ctx context.Context, id string) (*Registration, error)

	// Delete removes a registration
	Delete(ctx context.Context, id string) error

	// DeleteExpired deletes up to limit expired registrations and
	// reports how many were removed
	DeleteExpired(ctx context.Context, limit int) (int, error)
}
