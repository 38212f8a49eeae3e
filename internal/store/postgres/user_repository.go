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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gatehouse/gatehouse/internal/credentials"
	"github.com/gatehouse/gatehouse/internal/credentials/builtin"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations
const uniqueViolation = "23505"

// UserRepository implements builtin.Repository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a built-in user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, u *builtin.User) error {
	custom, err := marshalCustom(u.Custom)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, email, phone, full_name, password_hash,
			suspended, custom, created_at, modified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		u.ID, u.Username, u.Email, u.Phone, u.FullName, u.PasswordHash,
		u.Suspended, custom, u.CreatedAt, u.ModifiedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return credentials.ErrCredentialsExist
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Get retrieves a user by local ID
func (r *UserRepository) Get(ctx context.Context, id string) (*builtin.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, username, email, phone, full_name, password_hash,
			suspended, custom, created_at, modified_at
		FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetByIdent retrieves a user by username or email
func (r *UserRepository) GetByIdent(ctx context.Context, ident string) (*builtin.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, username, email, phone, full_name, password_hash,
			suspended, custom, created_at, modified_at
		FROM users WHERE username = $1 OR (email = $1 AND email <> '')
		LIMIT 1
	`, ident)
	return scanUser(row)
}

// Update updates user information
func (r *UserRepository) Update(ctx context.Context, u *builtin.User) error {
	custom, err := marshalCustom(u.Custom)
	if err != nil {
		return err
	}
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET
			username = $2, email = $3, phone = $4, full_name = $5,
			suspended = $6, custom = $7, modified_at = $8
		WHERE id = $1
	`, u.ID, u.Username, u.Email, u.Phone, u.FullName,
		u.Suspended, custom, u.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return credentials.ErrCredentialsNotFound
	}
	return nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, modified_at = now() WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return credentials.ErrCredentialsNotFound
	}
	return nil
}

// Delete removes a user
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return credentials.ErrCredentialsNotFound
	}
	return nil
}

// Count returns the number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// List pages through users ordered by creation time
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*builtin.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, username, email, phone, full_name, password_hash,
			suspended, custom, created_at, modified_at
		FROM users ORDER BY created_at OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*builtin.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Search lists users whose username, email or full name contains the
// filter, case-insensitively. An empty filter lists everyone.
func (r *UserRepository) Search(ctx context.Context, filter string) ([]*builtin.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, username, email, phone, full_name, password_hash,
			suspended, custom, created_at, modified_at
		FROM users
		WHERE $1 = ''
			OR username ILIKE '%' || $1 || '%'
			OR email ILIKE '%' || $1 || '%'
			OR full_name ILIKE '%' || $1 || '%'
		ORDER BY created_at
	`, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*builtin.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*builtin.User, error) {
	var (
		u      builtin.User
		custom []byte
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Phone, &u.FullName, &u.PasswordHash,
		&u.Suspended, &custom, &u.CreatedAt, &u.ModifiedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, credentials.ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &u.Custom); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user custom data: %w", err)
		}
	}
	return &u, nil
}

func marshalCustom(custom map[string]any) ([]byte, error) {
	if custom == nil {
		custom = map[string]any{}
	}
	data, err := json.Marshal(custom)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user custom data: %w", err)
	}
	return data, nil
}
