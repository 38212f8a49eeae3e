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

	"github.com/gatehouse/gatehouse/internal/registration"
)

// RegistrationRepository implements registration.Repository
type RegistrationRepository struct {
	db *DB
}

// NewRegistrationRepository creates a registration repository
func NewRegistrationRepository(db *DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create stores a pending registration
func (r *RegistrationRepository) Create(ctx context.Context, reg *registration.Registration) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO registrations (id, email, tenant, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, reg.ID, reg.Email, reg.Tenant, reg.InvitedBy, reg.ExpiresAt, reg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// Get retrieves a registration by ID
func (r *RegistrationRepository) Get(ctx context.Context, id string) (*registration.Registration, error) {
	var reg registration.Registration
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, email, tenant, invited_by, expires_at, created_at
		FROM registrations WHERE id = $1
	`, id).Scan(&reg.ID, &reg.Email, &reg.Tenant, &reg.InvitedBy,
		&reg.ExpiresAt, &reg.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, registration.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return &reg, nil
}

// Delete removes a registration
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return registration.ErrRegistrationNotFound
	}
	return nil
}

// DeleteExpired deletes up to limit expired registrations
func (r *RegistrationRepository) DeleteExpired(ctx context.Context, limit int) (int, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM registrations WHERE id IN (
			SELECT id FROM registrations WHERE expires_at < now() LIMIT $1
		)
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired registrations: %w", err)
	}
	return int(result.RowsAffected()), nil
}
