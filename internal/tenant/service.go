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
	"fmt"
	"log/slog"
	"strings"
)

// LastTenantsProvider returns the tenants a subject most recently
// authorized for, newest first. Implemented by the audit trail.
type LastTenantsProvider interface {
	LastAuthorizedTenants(ctx context.Context, credentialsID string) ([]string, error)
}

// Service resolves tenant access for sessions
type Service struct {
	repo        Repository
	lastTenants LastTenantsProvider
}

// NewService creates a tenant service
func NewService(repo Repository, lastTenants LastTenantsProvider) *Service {
	return &Service{repo: repo, lastTenants: lastTenants}
}

// Get retrieves a tenant by ID
func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.Get(ctx, tenantID)
}

// Create validates and creates a tenant
func (s *Service) Create(ctx context.Context, t *Tenant) error {
	if !NameRegex.MatchString(t.ID) {
		return ErrInvalidTenantName
	}
	return s.repo.Create(ctx, t)
}

// List lists all tenants
func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	return s.repo.List(ctx)
}

// ListByCredentialsID lists the tenant IDs assigned to a subject
func (s *Service) ListByCredentialsID(ctx context.Context, credentialsID string) ([]string, error) {
	return s.repo.ListByCredentialsID(ctx, credentialsID)
}

// AssignCredentials assigns a subject to a tenant
func (s *Service) AssignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	if _, err := s.repo.Get(ctx, tenantID); err != nil {
		return err
	}
	return s.repo.AssignCredentials(ctx, tenantID, credentialsID)
}

// UnassignCredentials removes a subject from a tenant
func (s *Service) UnassignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	return s.repo.UnassignCredentials(ctx, tenantID, credentialsID)
}

// GetTenantsByScope resolves which tenants a scope requests for a
// subject. Scope entries:
//
//	"tenant:*"    every tenant assigned to the subject
//	"tenant:<id>" that tenant, if assigned or hasAccessToAll
//	"tenant"      the most recently authorized tenant, falling back
//	              to the first assigned one
//
// Unknown tenants fail with ErrTenantNotFound, unassigned ones with
// ErrTenantAccessDenied. A bare "tenant" or a wildcard for a subject
// with no assignment at all fails with ErrNoTenants.
func (s *Service) GetTenantsByScope(ctx context.Context, scope []string, credentialsID string, hasAccessToAll bool) ([]string, error) {
	assigned, err := s.repo.ListByCredentialsID(ctx, credentialsID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned tenants: %w", err)
	}
	assignedSet := make(map[string]bool, len(assigned))
	for _, t := range assigned {
		assignedSet[t] = true
	}

	tenants := make([]string, 0, len(assigned))
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			tenants = append(tenants, t)
		}
	}

	for _, entry := range scope {
		switch {
		case entry == "tenant:*":
			if len(assigned) == 0 {
				return nil, ErrNoTenants
			}
			for _, t := range assigned {
				add(t)
			}

		case strings.HasPrefix(entry, "tenant:"):
			tenantID := strings.TrimPrefix(entry, "tenant:")
			if !assignedSet[tenantID] && !hasAccessToAll {
				slog.WarnContext(ctx, "tenant not accessible",
					slog.String("tenant", tenantID), slog.String("cid", credentialsID))
				return nil, ErrTenantAccessDenied
			}
			if _, err := s.repo.Get(ctx, tenantID); err != nil {
				if err == ErrTenantNotFound {
					return nil, ErrTenantNotFound
				}
				return nil, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
			}
			add(tenantID)

		case entry == "tenant":
			t, err := s.lastOrFirstTenant(ctx, credentialsID, assigned, assignedSet)
			if err != nil {
				return nil, err
			}
			add(t)
		}
	}
	return tenants, nil
}

// lastOrFirstTenant picks the tenant for a bare "tenant" scope entry
func (s *Service) lastOrFirstTenant(ctx context.Context, credentialsID string, assigned []string, assignedSet map[string]bool) (string, error) {
	if len(assigned) == 0 {
		return "", ErrNoTenants
	}
	if s.lastTenants != nil {
		recent, err := s.lastTenants.LastAuthorizedTenants(ctx, credentialsID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load last authorized tenants",
				slog.String("cid", credentialsID), slog.String("error", err.Error()))
		}
		for _, t := range recent {
			if assignedSet[t] {
				return t, nil
			}
		}
	}
	return assigned[0], nil
}
