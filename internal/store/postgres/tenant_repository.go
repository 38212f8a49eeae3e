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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gatehouse/gatehouse/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Get retrieves a tenant by ID
func (r *TenantRepository) Get(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, label, created_at, updated_at FROM tenants WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Label, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.Label, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// Delete deletes a tenant; assignments go with it via the foreign key
func (r *TenantRepository) Delete(ctx context.Context, tenantID string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// List lists all tenants
func (r *TenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, label, created_at, updated_at FROM tenants ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.Label, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// ListByCredentialsID lists the tenant IDs assigned to a subject
func (r *TenantRepository) ListByCredentialsID(ctx context.Context, credentialsID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT tenant_id FROM tenant_assignments
		WHERE credentials_id = $1 ORDER BY assigned_at
	`, credentialsID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant assignments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant assignment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignCredentials assigns a subject to a tenant
func (r *TenantRepository) AssignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenant_assignments (tenant_id, credentials_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, tenantID, credentialsID)
	if err != nil {
		return fmt.Errorf("failed to assign tenant: %w", err)
	}
	return nil
}

// UnassignCredentials removes a subject from a tenant
func (r *TenantRepository) UnassignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tenant_assignments WHERE tenant_id = $1 AND credentials_id = $2
	`, tenantID, credentialsID)
	if err != nil {
		return fmt.Errorf("failed to unassign tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}
