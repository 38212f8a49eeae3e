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

package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/authz"
)

// MockRoleRepo is an in-memory authz.RoleRepository
type MockRoleRepo struct {
	roles       map[string]*authz.Role
	assignments map[string][]string
}

func NewMockRoleRepo() *MockRoleRepo {
	return &MockRoleRepo{
		roles:       make(map[string]*authz.Role),
		assignments: make(map[string][]string),
	}
}

func (m *MockRoleRepo) Get(ctx context.Context, roleID string) (*authz.Role, error) {
	r, ok := m.roles[roleID]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	return r, nil
}

func (m *MockRoleRepo) ListByCredentialsID(ctx context.Context, credentialsID string) ([]*authz.Role, error) {
	var out []*authz.Role
	for _, roleID := range m.assignments[credentialsID] {
		if r, ok := m.roles[roleID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockRoleRepo) Assign(ctx context.Context, credentialsID, roleID string) error {
	m.assignments[credentialsID] = append(m.assignments[credentialsID], roleID)
	return nil
}

func (m *MockRoleRepo) Unassign(ctx context.Context, credentialsID, roleID string) error {
	var kept []string
	for _, r := range m.assignments[credentialsID] {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	m.assignments[credentialsID] = kept
	return nil
}

func (m *MockRoleRepo) grant(credentialsID, roleID, tenant string, resources ...string) {
	m.roles[roleID] = &authz.Role{ID: roleID, Tenant: tenant, Resources: resources}
	m.assignments[credentialsID] = append(m.assignments[credentialsID], roleID)
}

// TestPurpose: Verifies that role grants resolve into the session authz map keyed by "*" and tenants.
// Scope: Unit Test
// Security: Authorization computation
// Expected: Global roles land under "*", tenant roles under their tenant, out-of-scope roles are dropped, and resource unions are sorted and deduplicated.
func TestAuthz_Resolver_Resolve(t *testing.T) {
	repo := NewMockRoleRepo()
	repo.grant("cred-1", "global-reader", "*", "system:read")
	repo.grant("cred-1", "acme-admin", "acme-corp", "resource:write", "resource:read")
	repo.grant("cred-1", "acme-viewer", "acme-corp", "resource:read")
	repo.grant("cred-1", "other-admin", "other-corp", "resource:write")
	resolver := authz.NewResolver(repo)

	result, err := resolver.Resolve(context.Background(), "cred-1", []string{"acme-corp"}, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"*":         {"system:read"},
		"acme-corp": {"resource:read", "resource:write"},
	}, result, "other-corp grants must not appear for a session scoped to acme-corp")
}

// TestPurpose: Verifies that excluded resources disappear from every scope of the map.
// Scope: Unit Test
// Security: Impersonated sessions must not chain superuser or impersonation rights
// Expected: Excluded resources are stripped under "*" and under tenants alike.
func TestAuthz_Resolver_Resolve_Exclusions(t *testing.T) {
	repo := NewMockRoleRepo()
	repo.grant("cred-1", "global-admin", "*", authz.ResourceSuperuser, authz.ResourceImpersonate, "system:read")
	repo.grant("cred-1", "acme-admin", "acme-corp", authz.ResourceSuperuser, "resource:read")
	resolver := authz.NewResolver(repo)

	result, err := resolver.Resolve(context.Background(), "cred-1", []string{"acme-corp"},
		[]string{authz.ResourceSuperuser, authz.ResourceImpersonate})
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"*":         {"system:read"},
		"acme-corp": {"resource:read"},
	}, result)
}

// TestPurpose: Verifies that a subject with no roles still gets a well-formed empty map.
// Scope: Unit Test
// Security: None
// Expected: The "*" key exists with no resources.
func TestAuthz_Resolver_Resolve_NoRoles(t *testing.T) {
	resolver := authz.NewResolver(NewMockRoleRepo())

	result, err := resolver.Resolve(context.Background(), "cred-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"*": {}}, result)
}

// TestPurpose: Verifies resource checks against a resolved authz map.
// Scope: Unit Test
// Security: Access decisions for the introspection and admin endpoints
// Expected: Global grants apply to every tenant, tenant grants to theirs only, superuser to everything.
func TestAuthz_HasResourceAccess(t *testing.T) {
	m := map[string][]string{
		"*":         {"system:read"},
		"acme-corp": {"resource:read"},
	}

	assert.True(t, authz.HasResourceAccess(m, "acme-corp", "resource:read"))
	assert.True(t, authz.HasResourceAccess(m, "acme-corp", "system:read"))
	assert.True(t, authz.HasResourceAccess(m, "acme-corp", "resource:read", "system:read"))
	assert.False(t, authz.HasResourceAccess(m, "acme-corp", "resource:write"))
	assert.False(t, authz.HasResourceAccess(m, "other-corp", "resource:read"))

	super := map[string][]string{"*": {authz.ResourceSuperuser}}
	assert.True(t, authz.HasResourceAccess(super, "any-tenant", "anything:at:all"))
}

// TestPurpose: Verifies which grants open tenants the subject is not assigned to.
// Scope: Unit Test
// Security: Tenant isolation override rules
// Expected: Superuser and tenant access qualify, and only when granted globally.
func TestAuthz_CanAccessAllTenants(t *testing.T) {
	assert.True(t, authz.CanAccessAllTenants(map[string][]string{"*": {authz.ResourceSuperuser}}))
	assert.True(t, authz.CanAccessAllTenants(map[string][]string{"*": {authz.ResourceTenantAccess}}))
	assert.False(t, authz.CanAccessAllTenants(map[string][]string{"*": {"system:read"}}))
	assert.False(t, authz.CanAccessAllTenants(map[string][]string{
		"acme-corp": {authz.ResourceSuperuser},
	}), "tenant-scoped superuser must not open other tenants")
	assert.False(t, authz.CanAccessAllTenants(nil))
}
