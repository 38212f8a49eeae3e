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

	"github.com/gatehouse/gatehouse/internal/otp"
)

// OTPRepository implements otp.Repository. Secrets are AES-GCM sealed
// before they hit the table.
type OTPRepository struct {
	db            *DB
	encryptionKey []byte
}

// NewOTPRepository creates a TOTP secret repository. The key encrypts
// stored secrets, 32 bytes.
func NewOTPRepository(db *DB, encryptionKey []byte) *OTPRepository {
	return &OTPRepository{db: db, encryptionKey: encryptionKey}
}

// Get retrieves the TOTP secret of a subject
func (r *OTPRepository) Get(ctx context.Context, credentialsID string) (*otp.Secret, error) {
	var (
		s      otp.Secret
		sealed []byte
	)
	err := r.db.pool.QueryRow(ctx, `
		SELECT credentials_id, secret, active, created_at, modified_at
		FROM totp_secrets WHERE credentials_id = $1
	`, credentialsID).Scan(&s.CredentialsID, &sealed, &s.Active, &s.CreatedAt, &s.ModifiedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, otp.ErrTOTPNotFound
		}
		return nil, fmt.Errorf("failed to get totp secret: %w", err)
	}

	plain, err := openBytes(r.encryptionKey, sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt totp secret: %w", err)
	}
	s.Secret = plain
	return &s, nil
}

// Upsert stores or replaces the TOTP secret of a subject
func (r *OTPRepository) Upsert(ctx context.Context, s *otp.Secret) error {
	sealed, err := sealBytes(r.encryptionKey, s.Secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt totp secret: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO totp_secrets (credentials_id, secret, active, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (credentials_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			active = EXCLUDED.active,
			modified_at = EXCLUDED.modified_at
	`, s.CredentialsID, sealed, s.Active, s.CreatedAt, s.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert totp secret: %w", err)
	}
	return nil
}

// Delete removes the TOTP secret of a subject
func (r *OTPRepository) Delete(ctx context.Context, credentialsID string) error {
	result, err := r.db.pool.Exec(ctx,
		`DELETE FROM totp_secrets WHERE credentials_id = $1`, credentialsID)
	if err != nil {
		return fmt.Errorf("failed to delete totp secret: %w", err)
	}
	if result.RowsAffected() == 0 {
		return otp.ErrTOTPNotFound
	}
	return nil
}
