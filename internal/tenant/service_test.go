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

package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/tenant"
)

// MockTenantRepo is an in-memory tenant.Repository
type MockTenantRepo struct {
	tenants     map[string]*tenant.Tenant
	assignments map[string][]string
}

func NewMockTenantRepo() *MockTenantRepo {
	return &MockTenantRepo{
		tenants:     make(map[string]*tenant.Tenant),
		assignments: make(map[string][]string),
	}
}

func (m *MockTenantRepo) Get(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (m *MockTenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	m.tenants[t.ID] = t
	return nil
}

func (m *MockTenantRepo) Delete(ctx context.Context, tenantID string) error {
	delete(m.tenants, tenantID)
	return nil
}

func (m *MockTenantRepo) List(ctx context.Context) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *MockTenantRepo) ListByCredentialsID(ctx context.Context, credentialsID string) ([]string, error) {
	return m.assignments[credentialsID], nil
}

func (m *MockTenantRepo) AssignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	m.assignments[credentialsID] = append(m.assignments[credentialsID], tenantID)
	return nil
}

func (m *MockTenantRepo) UnassignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	var kept []string
	for _, t := range m.assignments[credentialsID] {
		if t != tenantID {
			kept = append(kept, t)
		}
	}
	m.assignments[credentialsID] = kept
	return nil
}

// MockLastTenants replays a fixed most-recently-authorized list
type MockLastTenants struct {
	recent []string
}

func (m *MockLastTenants) LastAuthorizedTenants(ctx context.Context, credentialsID string) ([]string, error) {
	return m.recent, nil
}

func newTestService(t *testing.T, recent ...string) (*tenant.Service, *MockTenantRepo) {
	t.Helper()
	repo := NewMockTenantRepo()
	svc := tenant.NewService(repo, &MockLastTenants{recent: recent})
	ctx := context.Background()
	for _, id := range []string{"acme-corp", "globex", "initech"} {
		require.NoError(t, repo.Create(ctx, &tenant.Tenant{ID: id}))
	}
	require.NoError(t, repo.AssignCredentials(ctx, "acme-corp", "cred-1"))
	require.NoError(t, repo.AssignCredentials(ctx, "globex", "cred-1"))
	return svc, repo
}

// TestPurpose: Verifies tenant resolution for the wildcard, explicit and bare scope forms.
// Scope: Unit Test
// Security: Tenant isolation at authorization time
// Expected: "tenant:*" yields every assignment, "tenant:<id>" the named one, "tenant" the last authorized one, without duplicates.
func TestTenant_Service_GetTenantsByScope(t *testing.T) {
	svc, _ := newTestService(t, "globex")
	ctx := context.Background()

	tenants, err := svc.GetTenantsByScope(ctx, []string{"openid", "tenant:*"}, "cred-1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-corp", "globex"}, tenants)

	tenants, err = svc.GetTenantsByScope(ctx, []string{"openid", "tenant:globex"}, "cred-1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"globex"}, tenants)

	tenants, err = svc.GetTenantsByScope(ctx, []string{"tenant", "tenant:*"}, "cred-1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"globex", "acme-corp"}, tenants, "the bare entry resolves first and must not repeat")
}

// TestPurpose: Verifies the bare "tenant" entry's fallback order.
// Scope: Unit Test
// Security: Tenant resolution
// Expected: Most recently authorized assigned tenant wins; without history the first assignment; unassigned history entries are skipped.
func TestTenant_Service_GetTenantsByScope_BareFallback(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t)
	tenants, err := svc.GetTenantsByScope(ctx, []string{"tenant"}, "cred-1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-corp"}, tenants, "no history falls back to the first assignment")

	svc, _ = newTestService(t, "initech", "globex")
	tenants, err = svc.GetTenantsByScope(ctx, []string{"tenant"}, "cred-1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"globex"}, tenants, "history entries the subject lost access to are skipped")
}

// TestPurpose: Verifies the failure modes of tenant resolution.
// Scope: Unit Test
// Security: Unknown and unassigned tenants must fail distinctly
// Expected: Unassigned yields ErrTenantAccessDenied, unknown yields ErrTenantNotFound, no assignment at all yields ErrNoTenants.
func TestTenant_Service_GetTenantsByScope_Failures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetTenantsByScope(ctx, []string{"tenant:initech"}, "cred-1", false)
	assert.ErrorIs(t, err, tenant.ErrTenantAccessDenied)

	_, err = svc.GetTenantsByScope(ctx, []string{"tenant:no-such"}, "cred-1", true)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)

	_, err = svc.GetTenantsByScope(ctx, []string{"tenant"}, "cred-unassigned", false)
	assert.ErrorIs(t, err, tenant.ErrNoTenants)

	_, err = svc.GetTenantsByScope(ctx, []string{"tenant:*"}, "cred-unassigned", false)
	assert.ErrorIs(t, err, tenant.ErrNoTenants, "the wildcard form must not resolve to an empty grant")
}

// TestPurpose: Verifies that global access overrides the assignment check but not tenant existence.
// Scope: Unit Test
// Security: Superuser tenant access
// Expected: An unassigned but existing tenant resolves when hasAccessToAll is set.
func TestTenant_Service_GetTenantsByScope_AccessToAll(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tenants, err := svc.GetTenantsByScope(ctx, []string{"tenant:initech"}, "cred-1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"initech"}, tenants)
}

// TestPurpose: Verifies tenant identifier validation on creation.
// Scope: Unit Test
// Security: Identifier hygiene (tenant IDs appear in URLs and scopes)
// Expected: Conforming names create, malformed ones fail with ErrInvalidTenantName.
func TestTenant_Service_Create_ValidatesName(t *testing.T) {
	repo := NewMockTenantRepo()
	svc := tenant.NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &tenant.Tenant{ID: "acme-corp"}))
	require.NoError(t, svc.Create(ctx, &tenant.Tenant{ID: "t0.example_x"}))

	for _, id := range []string{"", "ab", "0start", "-start", "has space", "tenant:colon"} {
		assert.ErrorIs(t, svc.Create(ctx, &tenant.Tenant{ID: id}), tenant.ErrInvalidTenantName, "id %q", id)
	}
}
