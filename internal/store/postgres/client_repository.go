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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gatehouse/gatehouse/internal/client"
)

// ClientRepository implements client.Repository
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a client repository
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Get retrieves a client by ID
func (r *ClientRepository) Get(ctx context.Context, clientID string) (*client.Client, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, secret_hash, name, application_type, redirect_uris,
			response_types, grant_types, session_expiration, authorize_uri,
			created_at, updated_at
		FROM clients WHERE id = $1
	`, clientID)
	return scanClient(row)
}

// Create registers a new client
func (r *ClientRepository) Create(ctx context.Context, c *client.Client) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO clients (
			id, secret_hash, name, application_type, redirect_uris,
			response_types, grant_types, session_expiration, authorize_uri,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		c.ID, c.SecretHash, c.Name, c.ApplicationType, c.RedirectURIs,
		c.ResponseTypes, c.GrantTypes, int64(c.SessionExpiration), c.AuthorizeURI,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// Update updates a client registration
func (r *ClientRepository) Update(ctx context.Context, c *client.Client) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE clients SET
			secret_hash = $2, name = $3, application_type = $4,
			redirect_uris = $5, response_types = $6, grant_types = $7,
			session_expiration = $8, authorize_uri = $9, updated_at = $10
		WHERE id = $1
	`,
		c.ID, c.SecretHash, c.Name, c.ApplicationType,
		c.RedirectURIs, c.ResponseTypes, c.GrantTypes,
		int64(c.SessionExpiration), c.AuthorizeURI, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return client.ErrClientNotFound
	}
	return nil
}

// Delete removes a client registration
func (r *ClientRepository) Delete(ctx context.Context, clientID string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return client.ErrClientNotFound
	}
	return nil
}

// List lists all registered clients
func (r *ClientRepository) List(ctx context.Context) ([]*client.Client, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, secret_hash, name, application_type, redirect_uris,
			response_types, grant_types, session_expiration, authorize_uri,
			created_at, updated_at
		FROM clients ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*client.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func scanClient(row rowScanner) (*client.Client, error) {
	var (
		c                 client.Client
		sessionExpiration int64
	)
	err := row.Scan(
		&c.ID, &c.SecretHash, &c.Name, &c.ApplicationType, &c.RedirectURIs,
		&c.ResponseTypes, &c.GrantTypes, &sessionExpiration, &c.AuthorizeURI,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, client.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c.SessionExpiration = time.Duration(sessionExpiration)
	return &c, nil
}
