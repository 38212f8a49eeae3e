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
	"fmt"

	"github.com/gatehouse/gatehouse/internal/audit"
)

// lastTenantsLimit bounds how many recent authorizations the bare
// "tenant" scope resolution looks back through
const lastTenantsLimit = 10

// AuditRepository implements audit.Store
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates an audit event repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert stores an audit event
func (r *AuditRepository) Insert(ctx context.Context, event audit.Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	tenants := event.Tenants
	if tenants == nil {
		tenants = []string{}
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO audit_events (
			type, credentials_id, session_id, client_id, tenants,
			metadata, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.Type, event.CredentialsID, event.SessionID, event.ClientID,
		tenants, data, event.IPAddress, event.UserAgent, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// LastAuthorizedTenants returns the tenants of the subject's most
// recent successful authorizations, newest first
func (r *AuditRepository) LastAuthorizedTenants(ctx context.Context, credentialsID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT tenants FROM audit_events
		WHERE credentials_id = $1 AND type = $2
		ORDER BY created_at DESC LIMIT $3
	`, credentialsID, audit.TypeAuthorizeSuccess, lastTenantsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var tenants []string
		if err := rows.Scan(&tenants); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		result = append(result, tenants...)
	}
	return result, rows.Err()
}
