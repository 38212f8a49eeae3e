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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gatehouse/gatehouse/internal/session"
)

// SessionRepository implements session.Repository. The nested field
// groups live in JSONB columns; the plaintext access token of
// cookie-scoped sessions is AES-GCM encrypted before it reaches disk.
type SessionRepository struct {
	db            *DB
	encryptionKey []byte
}

// NewSessionRepository creates a session repository. The key encrypts
// the stored access token field, 32 bytes.
func NewSessionRepository(db *DB, encryptionKey []byte) *SessionRepository {
	return &SessionRepository{db: db, encryptionKey: encryptionKey}
}

// JSONB wire shapes

type credentialsDoc struct {
	ID         string         `json:"id,omitempty"`
	Username   string         `json:"username,omitempty"`
	Email      string         `json:"email,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
	ModifiedAt *time.Time     `json:"modified_at,omitempty"`
	Custom     map[string]any `json:"custom,omitempty"`
}

type authenticationDoc struct {
	LoginDescriptor      string            `json:"login_descriptor,omitempty"`
	LoginFactors         []string          `json:"login_factors,omitempty"`
	AvailableFactors     []string          `json:"available_factors,omitempty"`
	ExternalLoginOptions map[string]string `json:"external_login_options,omitempty"`
	TOTPSet              bool              `json:"totp_set,omitempty"`
	ImpersonatorSID      string            `json:"impersonator_sid,omitempty"`
	ImpersonatorCID      string            `json:"impersonator_cid,omitempty"`
}

type authorizationDoc struct {
	AssignedTenants []string            `json:"assigned_tenants,omitempty"`
	Authz           map[string][]string `json:"authz,omitempty"`
}

type oauth2Doc struct {
	ClientID    string   `json:"client_id,omitempty"`
	Scope       []string `json:"scope,omitempty"`
	Nonce       string   `json:"nonce,omitempty"`
	RedirectURI string   `json:"redirect_uri,omitempty"`
	PKCE        string   `json:"pkce,omitempty"`
	// AccessTokenEnc is the AES-GCM sealed access token
	AccessTokenEnc []byte `json:"access_token_enc,omitempty"`
}

type cookieDoc struct {
	SessionCookieID []byte `json:"session_cookie_id,omitempty"`
	DomainID        string `json:"domain_id,omitempty"`
}

type batmanDoc struct {
	Token []byte `json:"token,omitempty"`
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	docs, err := r.marshalGroups(s)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO sessions (
			id, parent_id, type, track_id,
			credentials, authentication, authz, oauth2, cookie, batman,
			created_at, modified_at, expires_at, max_expires_at, touch_extension
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		s.ID, nullable(s.ParentID), string(s.Type), s.TrackID,
		docs[0], docs[1], docs[2], docs[3], docs[4], docs[5],
		s.CreatedAt, s.ModifiedAt, s.ExpiresAt, nullableTime(s.MaxExpiresAt),
		int64(s.TouchExtension),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, parent_id, type, track_id,
			credentials, authentication, authz, oauth2, cookie, batman,
			created_at, modified_at, expires_at, max_expires_at, touch_extension
		FROM sessions WHERE id = $1
	`, sessionID)
	return r.scanSession(row)
}

// Update persists the session when its stored modified_at still
// matches; a mismatch means someone updated it concurrently
func (r *SessionRepository) Update(ctx context.Context, s *session.Session, expectedModifiedAt time.Time) error {
	docs, err := r.marshalGroups(s)
	if err != nil {
		return err
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET
			credentials = $2, authentication = $3, authz = $4,
			oauth2 = $5, cookie = $6, batman = $7,
			modified_at = $8, expires_at = $9, track_id = $10
		WHERE id = $1 AND modified_at = $11
	`,
		s.ID,
		docs[0], docs[1], docs[2], docs[3], docs[4], docs[5],
		s.ModifiedAt, s.ExpiresAt, s.TrackID,
		expectedModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the row vanished or modified_at moved under us
		var exists bool
		if err := r.db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, s.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}
		if !exists {
			return session.ErrSessionNotFound
		}
		return session.ErrConcurrentUpdate
	}
	return nil
}

// Delete deletes a session
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// ListChildren lists sessions whose parent is the given session
func (r *SessionRepository) ListChildren(ctx context.Context, parentID string) ([]*session.Session, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, parent_id, type, track_id,
			credentials, authentication, authz, oauth2, cookie, batman,
			created_at, modified_at, expires_at, max_expires_at, touch_extension
		FROM sessions WHERE parent_id = $1
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child sessions: %w", err)
	}
	defer rows.Close()
	return r.collectSessions(rows)
}

// ListByCredentialsID lists sessions belonging to a subject
func (r *SessionRepository) ListByCredentialsID(ctx context.Context, credentialsID string) ([]*session.Session, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, parent_id, type, track_id,
			credentials, authentication, authz, oauth2, cookie, batman,
			created_at, modified_at, expires_at, max_expires_at, touch_extension
		FROM sessions WHERE credentials->>'id' = $1
		ORDER BY created_at
	`, credentialsID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	return r.collectSessions(rows)
}

// DeleteExpired deletes up to limit expired sessions
func (r *SessionRepository) DeleteExpired(ctx context.Context, limit int) (int, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE expires_at < now() LIMIT $1
		)
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *SessionRepository) marshalGroups(s *session.Session) ([6][]byte, error) {
	var docs [6][]byte

	accessTokenEnc, err := sealBytes(r.encryptionKey, []byte(s.OAuth2.AccessToken))
	if err != nil {
		return docs, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	groups := []any{
		credentialsDoc{
			ID:         s.Credentials.ID,
			Username:   s.Credentials.Username,
			Email:      s.Credentials.Email,
			Phone:      s.Credentials.Phone,
			CreatedAt:  s.Credentials.CreatedAt,
			ModifiedAt: s.Credentials.ModifiedAt,
			Custom:     s.Credentials.Custom,
		},
		authenticationDoc{
			LoginDescriptor:      s.Authentication.LoginDescriptor,
			LoginFactors:         s.Authentication.LoginFactors,
			AvailableFactors:     s.Authentication.AvailableFactors,
			ExternalLoginOptions: s.Authentication.ExternalLoginOptions,
			TOTPSet:              s.Authentication.TOTPSet,
			ImpersonatorSID:      s.Authentication.ImpersonatorSessionID,
			ImpersonatorCID:      s.Authentication.ImpersonatorCredentialsID,
		},
		authorizationDoc{
			AssignedTenants: s.Authorization.AssignedTenants,
			Authz:           s.Authorization.Authz,
		},
		oauth2Doc{
			ClientID:       s.OAuth2.ClientID,
			Scope:          s.OAuth2.Scope,
			Nonce:          s.OAuth2.Nonce,
			RedirectURI:    s.OAuth2.RedirectURI,
			PKCE:           s.OAuth2.PKCE,
			AccessTokenEnc: accessTokenEnc,
		},
		cookieDoc{
			SessionCookieID: s.Cookie.SessionCookieID,
			DomainID:        s.Cookie.DomainID,
		},
		batmanDoc{
			Token: s.Batman.Token,
		},
	}
	for i, group := range groups {
		data, err := json.Marshal(group)
		if err != nil {
			return docs, fmt.Errorf("failed to marshal session group: %w", err)
		}
		docs[i] = data
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SessionRepository) scanSession(row rowScanner) (*session.Session, error) {
	var (
		s              session.Session
		parentID       *string
		typ            string
		docs           [6][]byte
		maxExpiresAt   *time.Time
		touchExtension int64
	)
	err := row.Scan(
		&s.ID, &parentID, &typ, &s.TrackID,
		&docs[0], &docs[1], &docs[2], &docs[3], &docs[4], &docs[5],
		&s.CreatedAt, &s.ModifiedAt, &s.ExpiresAt, &maxExpiresAt, &touchExtension,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.Type = session.Type(typ)
	if parentID != nil {
		s.ParentID = *parentID
	}
	if maxExpiresAt != nil {
		s.MaxExpiresAt = *maxExpiresAt
	}
	s.TouchExtension = time.Duration(touchExtension)

	var (
		creds  credentialsDoc
		authn  authenticationDoc
		authz  authorizationDoc
		oauth2 oauth2Doc
		cookie cookieDoc
		batman batmanDoc
	)
	targets := []any{&creds, &authn, &authz, &oauth2, &cookie, &batman}
	for i, target := range targets {
		if len(docs[i]) == 0 {
			continue
		}
		if err := json.Unmarshal(docs[i], target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session group: %w", err)
		}
	}

	accessToken, err := openBytes(r.encryptionKey, oauth2.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	s.Credentials = session.Credentials{
		ID:         creds.ID,
		Username:   creds.Username,
		Email:      creds.Email,
		Phone:      creds.Phone,
		CreatedAt:  creds.CreatedAt,
		ModifiedAt: creds.ModifiedAt,
		Custom:     creds.Custom,
	}
	s.Authentication = session.Authentication{
		LoginDescriptor:           authn.LoginDescriptor,
		LoginFactors:              authn.LoginFactors,
		AvailableFactors:          authn.AvailableFactors,
		ExternalLoginOptions:      authn.ExternalLoginOptions,
		TOTPSet:                   authn.TOTPSet,
		ImpersonatorSessionID:     authn.ImpersonatorSID,
		ImpersonatorCredentialsID: authn.ImpersonatorCID,
	}
	s.Authorization = session.Authorization{
		AssignedTenants: authz.AssignedTenants,
		Authz:           authz.Authz,
	}
	s.OAuth2 = session.OAuth2{
		ClientID:    oauth2.ClientID,
		Scope:       oauth2.Scope,
		Nonce:       oauth2.Nonce,
		RedirectURI: oauth2.RedirectURI,
		PKCE:        oauth2.PKCE,
		AccessToken: string(accessToken),
	}
	s.Cookie = session.Cookie{
		SessionCookieID: cookie.SessionCookieID,
		DomainID:        cookie.DomainID,
	}
	s.Batman = session.Batman{
		Token: batman.Token,
	}
	return &s, nil
}

func (r *SessionRepository) collectSessions(rows pgx.Rows) ([]*session.Session, error) {
	var sessions []*session.Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
