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

	"github.com/gatehouse/gatehouse/internal/oidc"
)

// KeyRepository implements oidc.KeyRepository
type KeyRepository struct {
	db *DB
}

// NewKeyRepository creates a signing key repository
func NewKeyRepository(db *DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create stores a new key
func (r *KeyRepository) Create(ctx context.Context, key *oidc.Key) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO signing_keys (
			id, algorithm, public_key_pem, private_key_encrypted, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, key.ID, key.Algorithm, key.PublicKeyPEM, key.PrivateKeyEncrypted,
		key.CreatedAt, key.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create signing key: %w", err)
	}
	return nil
}

// GetActiveKey retrieves the newest non-expired key
func (r *KeyRepository) GetActiveKey(ctx context.Context) (*oidc.Key, error) {
	var key oidc.Key
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, algorithm, public_key_pem, private_key_encrypted, created_at, expires_at
		FROM signing_keys WHERE expires_at > now()
		ORDER BY created_at DESC LIMIT 1
	`).Scan(&key.ID, &key.Algorithm, &key.PublicKeyPEM, &key.PrivateKeyEncrypted,
		&key.CreatedAt, &key.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oidc.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get active signing key: %w", err)
	}
	return &key, nil
}

// ListValidKeys retrieves all non-expired keys, newest first
func (r *KeyRepository) ListValidKeys(ctx context.Context) ([]*oidc.Key, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, algorithm, public_key_pem, private_key_encrypted, created_at, expires_at
		FROM signing_keys WHERE expires_at > now()
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list signing keys: %w", err)
	}
	defer rows.Close()

	var keys []*oidc.Key
	for rows.Next() {
		var key oidc.Key
		if err := rows.Scan(&key.ID, &key.Algorithm, &key.PublicKeyPEM,
			&key.PrivateKeyEncrypted, &key.CreatedAt, &key.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan signing key: %w", err)
		}
		keys = append(keys, &key)
	}
	return keys, rows.Err()
}
