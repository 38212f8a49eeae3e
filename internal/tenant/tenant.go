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

package tenant

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Domain errors
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantAccessDenied = errors.New("tenant access denied")
	ErrNoTenants          = errors.New("user has no tenant")
	ErrInvalidTenantName  = errors.New("invalid tenant name")
)

// NameRegex constrains tenant identifiers: a letter followed by 2 to
// 31 letters, digits, dots, underscores or dashes
var NameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]{2,31}$`)

// Tenant represents an isolated customer environment
type Tenant struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines the interface for tenant persistence
type Repository interface {
	// Get retrieves a tenant by ID
	Get(ctx context.Context, tenantID string) (*Tenant, error)

	// Create creates a new tenant
	Create(ctx context.Context, tenant *Tenant) error

	// Delete deletes a tenant
	Delete(ctx context.Context, tenantID string) error

	// List lists all tenants
	List(ctx context.Context) ([]*Tenant, error)

	// ListByCredentialsID lists the tenant IDs assigned to a subject
	ListByCredentialsID(ctx context.Context, credentialsID string) ([]string, error)

	// AssignCredentials assigns a subject to a tenant
	AssignCredentials(ctx context.Context, tenantID, credentialsID string) error

	// UnassignCredentials removes a subject from a tenant
	UnassignCredentials(ctx context.Context, tenantID, credentialsID string) error
}
