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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeLoginSuccess       = "login_success"
	TypeLoginFailed        = "login_failed"
	TypeLogout             = "logout"
	TypeAuthorizeSuccess   = "authorize_success"
	TypeAuthorizeError     = "authorize_error"
	TypeTokenIssued        = "token_issued"
	TypeTokenRefreshed     = "token_refreshed"
	TypeTokenRevoked       = "token_revoked"
	TypeSessionDeleted     = "session_deleted"
	TypeImpersonation      = "impersonation"
	TypeCredentialsCreated = "credentials_created"
	TypePasswordChanged    = "password_changed"
	TypeTOTPActivated      = "totp_activated"
	TypeTOTPDeactivated    = "totp_deactivated"
	TypeRegistration       = "registration"
)

// Event represents an auditable action
type Event struct {
	Type          string
	CredentialsID string
	SessionID     string
	ClientID      string
	Tenants       []string
	Metadata      map[string]any
	Timestamp     time.Time
	IPAddress     string
	UserAgent     string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// Store persists audit events so they can be queried later. The
// authorize flow uses it to recall which tenant a user last entered.
type Store interface {
	// Insert stores an audit event
	Insert(ctx context.Context, event Event) error

	// LastAuthorizedTenants returns the tenants of a subject's most
	// recent successful authorizations, newest first
	LastAuthorizedTenants(ctx context.Context, credentialsID string) ([]string, error)
}

// Service writes audit events to the structured log and, when a store
// is configured, persists them. Persistence failures are logged and
// swallowed; an audit hiccup must not fail the audited request.
type Service struct {
	store Store
}

// NewService creates an audit service. A nil store keeps log-only
// behavior.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Log records an audit event
func (s *Service) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("cid", event.CredentialsID),
		slog.String("sid", event.SessionID),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", event.ClientID))
	}
	if len(event.Tenants) > 0 {
		attrs = append(attrs, slog.Any("tenants", event.Tenants))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)

	if s.store != nil {
		if err := s.store.Insert(ctx, event); err != nil {
			slog.WarnContext(ctx, "failed to persist audit event",
				slog.String("audit_type", event.Type), slog.String("error", err.Error()))
		}
	}
}

// LastAuthorizedTenants returns the tenants a subject most recently
// authorized for, newest first
func (s *Service) LastAuthorizedTenants(ctx context.Context, credentialsID string) ([]string, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.LastAuthorizedTenants(ctx, credentialsID)
}

// isSecret checks if a metadata key likely carries a secret value
func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "key", "hash", "credential", "authorization"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
