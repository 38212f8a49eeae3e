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

	"github.com/gatehouse/gatehouse/internal/authz"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Get retrieves a role by ID
func (r *RoleRepository) Get(ctx context.Context, roleID string) (*authz.Role, error) {
	var role authz.Role
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant, name, resources, created_at, updated_at
		FROM roles WHERE id = $1
	`, roleID).Scan(&role.ID, &role.Tenant, &role.Name, &role.Resources,
		&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListByCredentialsID lists the roles assigned to a subject
func (r *RoleRepository) ListByCredentialsID(ctx context.Context, credentialsID string) ([]*authz.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT r.id, r.tenant, r.name, r.resources, r.created_at, r.updated_at
		FROM roles r
		JOIN role_assignments ra ON ra.role_id = r.id
		WHERE ra.credentials_id = $1
		ORDER BY r.tenant, r.name
	`, credentialsID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(&role.ID, &role.Tenant, &role.Name, &role.Resources,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// Assign grants a role to a subject
func (r *RoleRepository) Assign(ctx context.Context, credentialsID, roleID string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO role_assignments (credentials_id, role_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, credentialsID, roleID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// Unassign revokes a role from a subject
func (r *RoleRepository) Unassign(ctx context.Context, credentialsID, roleID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM role_assignments WHERE credentials_id = $1 AND role_id = $2
	`, credentialsID, roleID)
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authz.ErrAssignmentNotFound
	}
	return nil
}
