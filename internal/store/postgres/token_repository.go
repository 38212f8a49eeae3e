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

	"github.com/gatehouse/gatehouse/internal/token"
)

// TokenRepository implements token.Repository
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a token repository
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a token record
func (r *TokenRepository) Create(ctx context.Context, t *token.Token) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tokens (
			type, hash, session_id, session_is_algorithmic,
			code_challenge, code_challenge_method, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		string(t.Type), t.Hash, t.SessionID, t.SessionIsAlgorithmic,
		t.CodeChallenge, t.CodeChallengeMethod, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// Get retrieves a token by type and hash
func (r *TokenRepository) Get(ctx context.Context, typ token.Type, hash []byte) (*token.Token, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT type, hash, session_id, session_is_algorithmic,
			code_challenge, code_challenge_method, expires_at, created_at
		FROM tokens WHERE type = $1 AND hash = $2
	`, string(typ), hash)
	return scanToken(row)
}

// GetAndDelete atomically retrieves and removes a token. The single
// DELETE RETURNING statement guarantees only one of two racing
// consumers gets the row.
func (r *TokenRepository) GetAndDelete(ctx context.Context, typ token.Type, hash []byte) (*token.Token, error) {
	row := r.db.pool.QueryRow(ctx, `
		DELETE FROM tokens WHERE type = $1 AND hash = $2
		RETURNING type, hash, session_id, session_is_algorithmic,
			code_challenge, code_challenge_method, expires_at, created_at
	`, string(typ), hash)
	return scanToken(row)
}

// Delete removes a token by type and hash
func (r *TokenRepository) Delete(ctx context.Context, typ token.Type, hash []byte) error {
	result, err := r.db.pool.Exec(ctx,
		`DELETE FROM tokens WHERE type = $1 AND hash = $2`, string(typ), hash)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return token.ErrTokenNotFound
	}
	return nil
}

// DeleteBySessionID removes all tokens bound to a session
func (r *TokenRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	_, err := r.db.pool.Exec(ctx,
		`DELETE FROM tokens WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session tokens: %w", err)
	}
	return nil
}

// DeleteExpired deletes up to limit expired tokens
func (r *TokenRepository) DeleteExpired(ctx context.Context, limit int) (int, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tokens WHERE (type, hash) IN (
			SELECT type, hash FROM tokens WHERE expires_at < now() LIMIT $1
		)
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func scanToken(row rowScanner) (*token.Token, error) {
	var (
		t   token.Token
		typ string
	)
	err := row.Scan(
		&typ, &t.Hash, &t.SessionID, &t.SessionIsAlgorithmic,
		&t.CodeChallenge, &t.CodeChallengeMethod, &t.ExpiresAt, &t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, token.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	t.Type = token.Type(typ)
	return &t, nil
}
