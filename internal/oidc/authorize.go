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

package oidc

import (
	"context"
	"log/slog"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/authz"
	"github.com/gatehouse/gatehouse/internal/client"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/tenant"
)

// Prompt values accepted on the authorize endpoint
const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptSelectAccount = "select_account"
)

// ResponseTypeCode is the only supported response type
const ResponseTypeCode = "code"

// AuthorizeRequest carries the parsed authorize endpoint parameters
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               []string
	State               string
	Nonce               string
	Prompt              string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorizeRequest runs the fixed validation order of the
// authorize endpoint. Errors returned with a nil client cannot be
// delivered by redirect and must render inline; once the client and
// redirect URI validate, errors travel back to the client.
func (s *Service) ValidateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*client.Client, *Error) {
	if len(req.Scope) == 0 {
		return nil, NewError(ErrCodeInvalidRequest, "scope is required").WithState(req.State)
	}
	if req.ClientID == "" {
		return nil, NewError(ErrCodeInvalidRequest, "client_id is required").WithState(req.State)
	}
	if req.ResponseType == "" {
		return nil, NewError(ErrCodeInvalidRequest, "response_type is required").WithState(req.State)
	}
	if req.RedirectURI == "" {
		return nil, NewError(ErrCodeInvalidRequest, "redirect_uri is required").WithState(req.State)
	}

	c, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		// Unknown and unreadable clients both map to
		// unauthorized_client; the redirect URI cannot be trusted so
		// the error renders inline
		slog.WarnContext(ctx, "authorize for unknown client",
			slog.String("client_id", req.ClientID), slog.String("error", err.Error()))
		return nil, NewError(ErrCodeUnauthorizedClient, "unknown client").WithState(req.State)
	}
	if err := s.clients.ValidateRedirectURI(c, req.RedirectURI); err != nil {
		return nil, NewError(ErrCodeInvalidRedirectURI, "redirect_uri is not registered for this client").WithState(req.State)
	}

	// From here on the redirect URI is trusted
	if req.ResponseType != ResponseTypeCode {
		return c, NewError(ErrCodeUnsupportedResponseType, "only the code response type is supported").WithState(req.State)
	}
	if !HasScope(req.Scope, ScopeOpenID) {
		return c, NewError(ErrCodeInvalidScope, "scope must include openid").WithState(req.State)
	}
	switch req.Prompt {
	case "", PromptNone, PromptLogin, PromptSelectAccount:
	default:
		return c, NewError(ErrCodeInvalidRequest, "unsupported prompt value").WithState(req.State)
	}
	if req.CodeChallengeMethod != "" && !ValidatePKCEMethod(req.CodeChallengeMethod) {
		return c, NewError(ErrCodeInvalidRequest, "unsupported code_challenge_method").WithState(req.State)
	}
	return c, nil
}

// AuthorizeCodeFlow finishes a validated authorize request for a
// logged-in root session: tenants are resolved from the scope, a
// client session descends from the root, and a single-use code is
// minted for the redirect. The client session is returned alongside
// the code so the handler can deliver its session cookie when the
// scope asked for one.
func (s *Service) AuthorizeCodeFlow(ctx context.Context, c *client.Client, root *session.Session, req *AuthorizeRequest) (string, *session.Session, *Error) {
	tenants, err := s.tenants.GetTenantsByScope(ctx, req.Scope,
		root.Credentials.ID, authz.CanAccessAllTenants(root.Authorization.Authz))
	if err != nil {
		return "", nil, s.tenantError(err, req.State)
	}

	sess, err := s.CreateOIDCSession(ctx, root, c, req.Scope, req.Nonce, req.RedirectURI, tenants)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create client session",
			slog.String("client_id", c.ID), slog.String("error", err.Error()))
		return "", nil, NewError(ErrCodeServerError, "failed to establish session").WithState(req.State)
	}

	code, err := s.CreateAuthorizationCode(ctx, sess, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create authorization code",
			slog.String("client_id", c.ID), slog.String("error", err.Error()))
		return "", nil, NewError(ErrCodeServerError, "failed to issue authorization code").WithState(req.State)
	}

	s.auditLog.Log(ctx, audit.Event{
		Type:          audit.TypeAuthorizeSuccess,
		CredentialsID: root.Credentials.ID,
		SessionID:     sess.ID,
		ClientID:      c.ID,
		Tenants:       tenants,
	})
	return code, sess, nil
}

// AuthorizeAnonymous finishes an authorize request carrying the
// anonymous scope for a client configured with an anonymous subject
func (s *Service) AuthorizeAnonymous(ctx context.Context, c *client.Client, anonymousCID string, req *AuthorizeRequest) (string, *Error) {
	sess, err := s.CreateAnonymousSession(ctx, c, anonymousCID, req.Scope, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create anonymous session",
			slog.String("client_id", c.ID), slog.String("error", err.Error()))
		return "", NewError(ErrCodeServerError, "failed to establish session").WithState(req.State)
	}
	code, err := s.CreateAuthorizationCode(ctx, sess, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return "", NewError(ErrCodeServerError, "failed to issue authorization code").WithState(req.State)
	}
	s.auditLog.Log(ctx, audit.Event{
		Type:      audit.TypeAuthorizeSuccess,
		SessionID: sess.ID,
		ClientID:  c.ID,
		Metadata:  map[string]any{"anonymous": true},
	})
	return code, nil
}

func (s *Service) tenantError(err error, state string) *Error {
	switch err {
	case tenant.ErrTenantAccessDenied:
		return NewError(ErrCodeUnauthorizedTenant, "tenant access denied").WithState(state)
	case tenant.ErrTenantNotFound:
		return NewError(ErrCodeTenantNotFound, "tenant not found").WithState(state)
	case tenant.ErrNoTenants:
		return NewError(ErrCodeUserHasNoTenant, "user has no tenant").WithState(state)
	default:
		return NewError(ErrCodeServerError, "failed to resolve tenants").WithState(state)
	}
}
