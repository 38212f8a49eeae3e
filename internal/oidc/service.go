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
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/authz"
	"github.com/gatehouse/gatehouse/internal/client"
	"github.com/gatehouse/gatehouse/internal/credentials"
	"github.com/gatehouse/gatehouse/internal/otp"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/tenant"
	"github.com/gatehouse/gatehouse/internal/token"
)

// Well-known scope values with server-side meaning
const (
	ScopeOpenID    = "openid"
	ScopeCookie    = "cookie"
	ScopeBatman    = "batman"
	ScopeAnonymous = "anonymous"
)

// Config holds OIDC issuance configuration
type Config struct {
	Issuer string

	AuthorizationCodeLength     int
	AuthorizationCodeExpiration time.Duration
	AccessTokenLength           int
	AccessTokenExpiration       time.Duration
	RefreshTokenLength          int
	RefreshTokenExpiration      time.Duration
	SessionCookieLength         int

	// EnforceFactors lists factors every user must set up before an
	// authorization may complete
	EnforceFactors []string

	// AnonymousCredentialsID is the subject of anonymous sessions.
	// Empty disables the anonymous scope.
	AnonymousCredentialsID string
}

// Service orchestrates the authorization code flow: it descends client
// sessions from root sessions, issues and resolves the opaque tokens,
// and signs ID tokens
type Service struct {
	cfg         Config
	sessions    *session.Service
	tokens      *token.Service
	clients     *client.Service
	tenants     *tenant.Service
	credentials *credentials.Service
	authz       *authz.Resolver
	otp         *otp.Service
	signer      *Signer
	auditLog    audit.Logger
}

// NewService creates the OIDC service
func NewService(cfg Config, sessions *session.Service, tokens *token.Service, clients *client.Service, tenants *tenant.Service, creds *credentials.Service, resolver *authz.Resolver, otpSvc *otp.Service, signer *Signer, auditLog audit.Logger) *Service {
	if cfg.SessionCookieLength <= 0 {
		cfg.SessionCookieLength = 32
	}
	return &Service{
		cfg:         cfg,
		sessions:    sessions,
		tokens:      tokens,
		clients:     clients,
		tenants:     tenants,
		credentials: creds,
		authz:       resolver,
		otp:         otpSvc,
		signer:      signer,
		auditLog:    auditLog,
	}
}

// Issuer returns the configured issuer identifier
func (s *Service) Issuer() string {
	return s.cfg.Issuer
}

// Signer returns the ID token signer
func (s *Service) Signer() *Signer {
	return s.signer
}

// Sessions returns the underlying session service
func (s *Service) Sessions() *session.Service {
	return s.sessions
}

// EnforcedFactors returns the factors every user must have set up
func (s *Service) EnforcedFactors() []string {
	return s.cfg.EnforceFactors
}

// AnonymousCredentialsID returns the configured anonymous subject, or
// empty when the anonymous scope is disabled
func (s *Service) AnonymousCredentialsID() string {
	return s.cfg.AnonymousCredentialsID
}

// AuthenticateClient verifies client credentials at the token endpoint
func (s *Service) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*client.Client, error) {
	return s.clients.Authenticate(ctx, clientID, clientSecret)
}

// ValidateClientGrantType checks a grant type against the client's
// registration
func (s *Service) ValidateClientGrantType(c *client.Client, grantType string) error {
	return s.clients.ValidateGrantType(c, grantType)
}

// ValidateRedirectURI checks a redirect target against a client's
// registered redirect URIs
func (s *Service) ValidateRedirectURI(ctx context.Context, clientID, redirectURI string) error {
	c, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return err
	}
	return s.clients.ValidateRedirectURI(c, redirectURI)
}

// HasScope reports whether a scope list contains a value
func HasScope(scope []string, value string) bool {
	for _, entry := range scope {
		if entry == value {
			return true
		}
	}
	return false
}

// impersonationExclusions are stripped from the authz of impersonated
// sessions so an impersonator cannot chain privileges
var impersonationExclusions = []string{
	authz.ResourceSuperuser,
	authz.ResourceImpersonate,
}

// CreateOIDCSession descends a per-client session from a root session.
// Tenants come pre-resolved from the scope; the authz map is computed
// fresh. When the scope asks for a cookie, a session cookie token is
// minted for the new session so the cookie entry endpoint can deliver
// it.
func (s *Service) CreateOIDCSession(ctx context.Context, root *session.Session, c *client.Client, scope []string, nonce, redirectURI string, tenants []string) (*session.Session, error) {
	var exclude []string
	if root.Authentication.ImpersonatorSessionID != "" {
		exclude = impersonationExclusions
	}
	authzMap, err := s.authz.Resolve(ctx, root.Credentials.ID, tenants, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve authorization: %w", err)
	}

	expiration := s.cfg.AccessTokenExpiration
	if c.SessionExpiration > 0 && c.SessionExpiration < expiration {
		expiration = c.SessionExpiration
	}

	fields := []session.Field{
		session.F(session.FieldTrackID, root.TrackID),
		session.F(session.FieldCredentialsID, root.Credentials.ID),
		session.F(session.FieldCredentialsUsername, root.Credentials.Username),
		session.F(session.FieldCredentialsEmail, root.Credentials.Email),
		session.F(session.FieldCredentialsPhone, root.Credentials.Phone),
		session.F(session.FieldAuthnLoginDescriptor, root.Authentication.LoginDescriptor),
		session.F(session.FieldAuthnLoginFactors, root.Authentication.LoginFactors),
		session.F(session.FieldAuthnAvailableFactors, root.Authentication.AvailableFactors),
		session.F(session.FieldAuthnTOTPSet, root.Authentication.TOTPSet),
		session.F(session.FieldAuthzAssignedTenants, tenants),
		session.F(session.FieldAuthzAuthz, authzMap),
		session.F(session.FieldOAuth2ClientID, c.ID),
		session.F(session.FieldOAuth2Scope, scope),
		session.F(session.FieldOAuth2Nonce, nonce),
		session.F(session.FieldOAuth2RedirectURI, redirectURI),
	}
	if root.Credentials.CreatedAt != nil {
		fields = append(fields, session.F(session.FieldCredentialsCreatedAt, *root.Credentials.CreatedAt))
	}
	if root.Credentials.ModifiedAt != nil {
		fields = append(fields, session.F(session.FieldCredentialsModifiedAt, *root.Credentials.ModifiedAt))
	}
	if len(root.Credentials.Custom) > 0 {
		fields = append(fields, session.F(session.FieldCredentialsCustom, root.Credentials.Custom))
	}
	if root.Authentication.ImpersonatorSessionID != "" {
		fields = append(fields,
			session.F(session.FieldAuthnImpersonatorSID, root.Authentication.ImpersonatorSessionID),
			session.F(session.FieldAuthnImpersonatorCID, root.Authentication.ImpersonatorCredentialsID),
		)
	}

	sess, err := s.sessions.Create(ctx, session.TypeOpenIDConnect, root.ID, expiration, fields...)
	if err != nil {
		return nil, err
	}

	if HasScope(scope, ScopeCookie) {
		sci, err := s.tokens.Create(ctx, token.TypeSessionCookie, sess.ID,
			s.cfg.SessionCookieLength, expiration, token.CreateOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to mint session cookie: %w", err)
		}
		sess, err = s.sessions.Update(ctx, sess.ID,
			session.F(session.FieldCookieSessionCookieID, sci))
		if err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// CreateAnonymousSession builds an algorithmic session for clients
// allowed to operate without login. It never touches session storage.
func (s *Service) CreateAnonymousSession(ctx context.Context, c *client.Client, anonymousCID string, scope []string, tenants []string) (*session.Session, error) {
	authzMap, err := s.authz.Resolve(ctx, anonymousCID, tenants, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve authorization: %w", err)
	}
	return s.sessions.CreateAnonymousSession(ctx,
		session.F(session.FieldCredentialsID, anonymousCID),
		session.F(session.FieldOAuth2ClientID, c.ID),
		session.F(session.FieldOAuth2Scope, scope),
		session.F(session.FieldAuthzAssignedTenants, tenants),
		session.F(session.FieldAuthzAuthz, authzMap),
	), nil
}

// CreateAuthorizationCode mints the single-use code delivered through
// the redirect. Algorithmic sessions are serialized into the code's
// token record since they have no stored row to reference.
func (s *Service) CreateAuthorizationCode(ctx context.Context, sess *session.Session, codeChallenge, codeChallengeMethod string) (string, error) {
	sessionRef, isAlgorithmic, err := s.sessionRef(sess)
	if err != nil {
		return "", err
	}
	raw, err := s.tokens.Create(ctx, token.TypeAuthorizationCode, sessionRef,
		s.cfg.AuthorizationCodeLength, s.cfg.AuthorizationCodeExpiration,
		token.CreateOptions{
			SessionIsAlgorithmic: isAlgorithmic,
			CodeChallenge:        codeChallenge,
			CodeChallengeMethod:  codeChallengeMethod,
		})
	if err != nil {
		return "", fmt.Errorf("failed to create authorization code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// TokenResponse is the token endpoint's success payload
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ExchangeAuthorizationCode implements the authorization_code grant.
// The code is consumed atomically, so a replayed code fails even under
// concurrency. Algorithmic sessions get an access token but never a
// refresh token.
func (s *Service) ExchangeAuthorizationCode(ctx context.Context, clientID, code, codeVerifier string) (*TokenResponse, error) {
	raw, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "malformed authorization code")
	}

	t, err := s.tokens.GetAndDelete(ctx, token.TypeAuthorizationCode, raw)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "invalid authorization code")
	}
	if err := VerifyPKCE(t.CodeChallenge, t.CodeChallengeMethod, codeVerifier); err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "pkce verification failed")
	}

	sess, err := s.sessionFromToken(ctx, t)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "session no longer valid")
	}
	if sess.OAuth2.ClientID != clientID {
		return nil, NewError(ErrCodeInvalidGrant, "authorization code was issued to another client")
	}

	return s.issueTokens(ctx, sess, audit.TypeTokenIssued)
}

// RefreshAccessToken implements the refresh_token grant. The session
// is rebuilt against current authorization state and the refresh token
// rotates: the presented one is consumed, a new one is issued.
func (s *Service) RefreshAccessToken(ctx context.Context, clientID, refreshToken string, requestedScope []string) (*TokenResponse, error) {
	raw, err := base64.RawURLEncoding.DecodeString(refreshToken)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "malformed refresh token")
	}

	t, err := s.tokens.GetAndDelete(ctx, token.TypeRefreshToken, raw)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "invalid refresh token")
	}
	sess, err := s.sessions.Get(ctx, t.SessionID)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "session no longer valid")
	}
	if sess.OAuth2.ClientID != clientID {
		return nil, NewError(ErrCodeInvalidGrant, "refresh token was issued to another client")
	}

	// A refresh may narrow the granted scope but never widen it
	if len(requestedScope) > 0 {
		granted := make(map[string]bool, len(sess.OAuth2.Scope))
		for _, entry := range sess.OAuth2.Scope {
			granted[entry] = true
		}
		for _, entry := range requestedScope {
			if !granted[entry] {
				return nil, NewError(ErrCodeInvalidScope,
					fmt.Sprintf("scope %q exceeds the granted scope", entry))
			}
		}
	}

	sess, err = s.rebuildSession(ctx, sess)
	if err != nil {
		return nil, NewError(ErrCodeServerError, "failed to rebuild session")
	}

	return s.issueTokens(ctx, sess, audit.TypeTokenRefreshed)
}

// rebuildSession refreshes the session's authorization against current
// tenant and role assignments
func (s *Service) rebuildSession(ctx context.Context, sess *session.Session) (*session.Session, error) {
	var exclude []string
	if sess.Authentication.ImpersonatorSessionID != "" {
		exclude = impersonationExclusions
	}
	authzMap, err := s.authz.Resolve(ctx, sess.Credentials.ID, sess.Authorization.AssignedTenants, exclude)
	if err != nil {
		return nil, err
	}
	return s.sessions.Update(ctx, sess.ID, session.F(session.FieldAuthzAuthz, authzMap))
}

func (s *Service) issueTokens(ctx context.Context, sess *session.Session, auditType string) (*TokenResponse, error) {
	sessionRef, isAlgorithmic, err := s.sessionRef(sess)
	if err != nil {
		return nil, NewError(ErrCodeServerError, "failed to serialize session")
	}

	accessRaw, err := s.tokens.Create(ctx, token.TypeAccessToken, sessionRef,
		s.cfg.AccessTokenLength, s.cfg.AccessTokenExpiration,
		token.CreateOptions{SessionIsAlgorithmic: isAlgorithmic})
	if err != nil {
		return nil, NewError(ErrCodeServerError, "failed to issue access token")
	}

	resp := &TokenResponse{
		AccessToken: base64.RawURLEncoding.EncodeToString(accessRaw),
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTokenExpiration.Seconds()),
		Scope:       strings.Join(sess.OAuth2.Scope, " "),
	}

	if !isAlgorithmic {
		refreshRaw, err := s.tokens.Create(ctx, token.TypeRefreshToken, sess.ID,
			s.cfg.RefreshTokenLength, s.cfg.RefreshTokenExpiration, token.CreateOptions{})
		if err != nil {
			return nil, NewError(ErrCodeServerError, "failed to issue refresh token")
		}
		resp.RefreshToken = base64.RawURLEncoding.EncodeToString(refreshRaw)
	}

	if HasScope(sess.OAuth2.Scope, ScopeOpenID) {
		idToken, err := s.signer.SignIDToken(BuildUserinfo(s.cfg.Issuer, sess))
		if err != nil {
			return nil, NewError(ErrCodeServerError, "failed to sign id token")
		}
		resp.IDToken = idToken
	}

	s.auditLog.Log(ctx, audit.Event{
		Type:          auditType,
		CredentialsID: sess.Credentials.ID,
		SessionID:     sess.ID,
		ClientID:      sess.OAuth2.ClientID,
		Tenants:       sess.Authorization.AssignedTenants,
	})
	return resp, nil
}

// GetSessionByAccessToken resolves a bearer access token to its
// session. Tokens whose session is gone are deleted on sight.
func (s *Service) GetSessionByAccessToken(ctx context.Context, accessToken string) (*session.Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(accessToken)
	if err != nil {
		return nil, token.ErrTokenNotFound
	}
	t, err := s.tokens.Get(ctx, token.TypeAccessToken, raw)
	if err != nil {
		return nil, err
	}
	return s.resolveTokenSession(ctx, t, raw)
}

// GetSessionByCookieID resolves a session cookie id to its session
func (s *Service) GetSessionByCookieID(ctx context.Context, sci []byte) (*session.Session, error) {
	t, err := s.tokens.Get(ctx, token.TypeSessionCookie, sci)
	if err != nil {
		return nil, err
	}
	return s.resolveTokenSession(ctx, t, sci)
}

// resolveTokenSession loads the token's session, deleting the token if
// its session reference no longer resolves
func (s *Service) resolveTokenSession(ctx context.Context, t *token.Token, raw []byte) (*session.Session, error) {
	sess, err := s.sessionFromToken(ctx, t)
	if err != nil {
		s.dropBrokenToken(ctx, t, raw)
		return nil, err
	}
	return sess, nil
}

func (s *Service) dropBrokenToken(ctx context.Context, t *token.Token, raw []byte) {
	if err := s.tokens.Delete(ctx, t.Type, raw); err != nil {
		slog.WarnContext(ctx, "failed to delete dangling token",
			slog.String("token_type", string(t.Type)), slog.String("error", err.Error()))
	}
}

// RevokeToken implements RFC 7009. Revoking a token destroys the
// session behind it, which cascades to every sibling token, so a
// revoked access token also kills the refresh token it was issued
// with. Unknown tokens succeed silently.
func (s *Service) RevokeToken(ctx context.Context, clientID, value, typeHint string) error {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}

	order := []token.Type{token.TypeAccessToken, token.TypeRefreshToken}
	if typeHint == "refresh_token" {
		order = []token.Type{token.TypeRefreshToken, token.TypeAccessToken}
	}
	for _, typ := range order {
		t, err := s.tokens.Get(ctx, typ, raw)
		if err != nil {
			continue
		}
		sessionID := t.SessionID
		if t.SessionIsAlgorithmic {
			// No stored session to destroy, only the token itself
			sessionID = ""
			if err := s.tokens.Delete(ctx, typ, raw); err != nil {
				return fmt.Errorf("failed to revoke token: %w", err)
			}
		} else if err := s.sessions.Delete(ctx, t.SessionID); err != nil {
			return fmt.Errorf("failed to delete revoked session: %w", err)
		}
		s.auditLog.Log(ctx, audit.Event{
			Type:      audit.TypeTokenRevoked,
			SessionID: sessionID,
			ClientID:  clientID,
			Metadata:  map[string]any{"token_type": string(typ)},
		})
		return nil
	}
	return nil
}

// FactorsToSetup lists the enforced factors the subject still has to
// set up before an authorization may complete
func (s *Service) FactorsToSetup(ctx context.Context, sess *session.Session) ([]string, error) {
	var missing []string
	for _, factor := range s.cfg.EnforceFactors {
		switch factor {
		case "totp":
			active, err := s.otp.HasActivatedTOTP(ctx, sess.Credentials.ID)
			if err != nil {
				return nil, err
			}
			if !active {
				missing = append(missing, factor)
			}
		default:
			if !HasScope(sess.Authentication.AvailableFactors, factor) {
				missing = append(missing, factor)
			}
		}
	}
	return missing, nil
}

// sessionRef returns what a token should reference: the session ID for
// stored sessions, the encrypted serialization for algorithmic ones
func (s *Service) sessionRef(sess *session.Session) (string, bool, error) {
	if !sess.IsAlgorithmic() {
		return sess.ID, false, nil
	}
	data, err := s.sessions.Serialize(sess)
	if err != nil {
		return "", false, err
	}
	return base64.RawURLEncoding.EncodeToString(data), true, nil
}

func (s *Service) sessionFromToken(ctx context.Context, t *token.Token) (*session.Session, error) {
	if t.SessionIsAlgorithmic {
		data, err := base64.RawURLEncoding.DecodeString(t.SessionID)
		if err != nil {
			return nil, session.ErrInvalidAlgorithmicSession
		}
		return s.sessions.Deserialize(data)
	}
	return s.sessions.Get(ctx, t.SessionID)
}
