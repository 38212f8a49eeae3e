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

package authz

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAccessDenied       = errors.New("access denied")
)

// Built-in resource identifiers with special meaning
const (
	// ResourceSuperuser grants every resource everywhere
	ResourceSuperuser = "authz:superuser"
	// ResourceImpersonate allows starting sessions on behalf of others
	ResourceImpersonate = "authz:impersonate"
	// ResourceTenantAccess allows entering any tenant without assignment
	ResourceTenantAccess = "authz:tenant:access"
)

// Role is a named set of resource grants. Global roles live under
// tenant "*"; tenant roles are scoped to one tenant.
type Role struct {
	ID        string
	Tenant    string
	Name      string
	Resources []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assignment grants a role to a credentials holder
type Assignment struct {
	CredentialsID string
	RoleID        string
	GrantedAt     time.Time
}

// RoleRepository defines the interface for role persistence
type RoleRepository interface {
	// Get retrieves a role by ID
	Get(ctx context.Context, roleID string) (*Role, error)

	// ListByCredentialsID lists the roles assigned to a subject,
	// global roles and tenant roles alike
	ListByCredentialsID(ctx context.Context, credentialsID string) ([]*Role, error)

	// Assign grants a role to a subject
	Assign(ctx context.Context, credentialsID, roleID string) error

	// Unassign revokes a role from a subject
	Unassign(ctx context.Context, credentialsID, roleID string) error
}
