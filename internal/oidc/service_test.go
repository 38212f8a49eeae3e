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

package oidc_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/authz"
	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/session"
)

// authorizeAndGetCode runs the code flow for a logged-in root session
func authorizeAndGetCode(t *testing.T, h *harness, root *session.Session, req *oidc.AuthorizeRequest) string {
	t.Helper()
	c, oidcErr := h.svc.ValidateAuthorizeRequest(context.Background(), req)
	require.Nil(t, oidcErr)
	code, _, oidcErr := h.svc.AuthorizeCodeFlow(context.Background(), c, root, req)
	require.Nil(t, oidcErr)
	return code
}

func protocolError(t *testing.T, err error) *oidc.Error {
	t.Helper()
	oidcErr, ok := err.(*oidc.Error)
	require.True(t, ok, "expected a protocol error, got %v", err)
	return oidcErr
}

// TestPurpose: Verifies the full authorization code exchange: access, refresh and ID token issuance with a verifiable ES256 signature.
// Scope: Unit Test
// Security: OAuth2 Authorization Code Grant (RFC 6749 section 4.1.3) and OIDC Core ID token
// Expected: All three tokens issue; the ID token verifies and carries iss, sub, aud and nonce.
func TestOIDC_Service_ExchangeAuthorizationCode_Success(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	cid := h.addUser(t, "alice", "correct horse", "acme-corp", "resource:read")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))

	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	require.NotEmpty(t, resp.IDToken)

	claims, err := h.signer.Verify(ctx, resp.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.test.example.com", claims["iss"])
	assert.Equal(t, cid, claims["sub"])
	assert.Equal(t, "client-1", claims["aud"])
	assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
}

// TestPurpose: Verifies that an authorization code is consumed on first use and replays fail.
// Scope: Unit Test
// Security: Code replay prevention (RFC 6749 section 4.1.2)
// Expected: Second exchange of the same code fails with invalid_grant.
func TestOIDC_Service_ExchangeAuthorizationCode_ReplayFails(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))

	_, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)

	_, err = h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	assert.Equal(t, oidc.ErrCodeInvalidGrant, protocolError(t, err).Code)
}

// TestPurpose: Verifies that a code issued to one client cannot be exchanged by another.
// Scope: Unit Test
// Security: Code binding to the requesting client
// Expected: invalid_grant for the wrong client_id.
func TestOIDC_Service_ExchangeAuthorizationCode_WrongClient(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addClient(t, "client-2", "secret-2")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))

	_, err := h.svc.ExchangeAuthorizationCode(ctx, "client-2", code, "")
	assert.Equal(t, oidc.ErrCodeInvalidGrant, protocolError(t, err).Code)
}

// TestPurpose: Verifies PKCE S256 enforcement on code exchange.
// Scope: Unit Test
// Security: PKCE (RFC 7636) against code interception
// Expected: The matching verifier passes, a wrong or missing one fails with invalid_grant.
func TestOIDC_Service_ExchangeAuthorizationCode_PKCES256(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := sha256.Sum256([]byte(verifier))

	newCode := func() string {
		req := authorizeRequest("client-1", "openid", "tenant:acme-corp")
		req.CodeChallenge = base64.RawURLEncoding.EncodeToString(challenge[:])
		req.CodeChallengeMethod = oidc.PKCEMethodS256
		return authorizeAndGetCode(t, h, root, req)
	}

	_, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", newCode(), verifier)
	assert.NoError(t, err)

	_, err = h.svc.ExchangeAuthorizationCode(ctx, "client-1", newCode(), "wrong-verifier")
	assert.Equal(t, oidc.ErrCodeInvalidGrant, protocolError(t, err).Code)

	_, err = h.svc.ExchangeAuthorizationCode(ctx, "client-1", newCode(), "")
	assert.Equal(t, oidc.ErrCodeInvalidGrant, protocolError(t, err).Code)
}

// TestPurpose: Verifies refresh token rotation: the presented token is consumed and the replacement works.
// Scope: Unit Test
// Security: Refresh token rotation limits the damage of a leaked token
// Expected: Old refresh token fails after use; the newly issued one succeeds.
func TestOIDC_Service_RefreshAccessToken_Rotation(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))
	first, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)

	second, err := h.svc.RefreshAccessToken(ctx, "client-1", first.RefreshToken, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	_, err = h.svc.RefreshAccessToken(ctx, "client-1", first.RefreshToken, nil)
	assert.Equal(t, oidc.ErrCodeInvalidGrant, protocolError(t, err).Code)

	_, err = h.svc.RefreshAccessToken(ctx, "client-1", second.RefreshToken, nil)
	assert.NoError(t, err)
}

// TestPurpose: Verifies that a refresh may narrow the granted scope but never widen it.
// Scope: Unit Test
// Security: Scope escalation prevention (RFC 6749 section 6)
// Expected: A subset passes, a superset fails with invalid_scope.
func TestOIDC_Service_RefreshAccessToken_ScopeSubsetOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))
	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)

	narrowed, err := h.svc.RefreshAccessToken(ctx, "client-1", resp.RefreshToken, []string{"openid"})
	require.NoError(t, err)

	_, err = h.svc.RefreshAccessToken(ctx, "client-1", narrowed.RefreshToken,
		[]string{"openid", "tenant:acme-corp", "profile"})
	assert.Equal(t, oidc.ErrCodeInvalidScope, protocolError(t, err).Code)
}

// TestPurpose: Verifies that anonymous sessions get an access token but never a refresh token.
// Scope: Unit Test
// Security: Algorithmic sessions cannot be extended indefinitely
// Expected: Access and ID token present, refresh token empty, anonymous claim set.
func TestOIDC_Service_AnonymousExchange_NoRefreshToken(t *testing.T) {
	h := newHarness(t, func(cfg *oidc.Config) {
		cfg.AnonymousCredentialsID = "mock:test:anonymous"
	})
	c := h.addClient(t, "client-1", "secret-1")
	ctx := context.Background()

	req := authorizeRequest("client-1", "openid", "anonymous")
	code, oidcErr := h.svc.AuthorizeAnonymous(ctx, c, "mock:test:anonymous", req)
	require.Nil(t, oidcErr)

	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.IDToken)

	claims, err := h.signer.Verify(ctx, resp.IDToken)
	require.NoError(t, err)
	assert.Equal(t, true, claims["anonymous"])
	assert.Equal(t, "mock:test:anonymous", claims["sub"])
}

// TestPurpose: Verifies that a bearer access token resolves back to its session.
// Scope: Unit Test
// Security: Token introspection correctness
// Expected: The session behind the token matches the authorized client session.
func TestOIDC_Service_GetSessionByAccessToken(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	cid := h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))
	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)

	sess, err := h.svc.GetSessionByAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, cid, sess.Credentials.ID)
	assert.Equal(t, "client-1", sess.OAuth2.ClientID)
	assert.Equal(t, session.TypeOpenIDConnect, sess.Type)
}

// TestPurpose: Verifies RFC 7009 revocation: revoked tokens stop resolving, unknown tokens succeed silently.
// Scope: Unit Test
// Security: Token revocation
// Expected: Revoke succeeds for valid and garbage input; the revoked token no longer resolves.
func TestOIDC_Service_RevokeToken(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))
	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)

	require.NoError(t, h.svc.RevokeToken(ctx, "client-1", resp.AccessToken, "access_token"))
	_, err = h.svc.GetSessionByAccessToken(ctx, resp.AccessToken)
	assert.Error(t, err)

	assert.NoError(t, h.svc.RevokeToken(ctx, "client-1", "unknown-token", ""))
	assert.NoError(t, h.svc.RevokeToken(ctx, "client-1", "not!base64!!", ""))
}

// TestPurpose: Verifies that revoking one token destroys the client session and with it every sibling token.
// Scope: Unit Test
// Security: RFC 7009 revocation must not leave a live refresh token behind a revoked access token
// Expected: After revoking the access token, the refresh token no longer mints tokens and the client session row is gone. The root session survives.
func TestOIDC_Service_RevokeToken_DestroysSession(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))
	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)

	require.NoError(t, h.svc.RevokeToken(ctx, "client-1", resp.AccessToken, "access_token"))

	_, err = h.svc.RefreshAccessToken(ctx, "client-1", resp.RefreshToken, nil)
	assert.Equal(t, oidc.ErrCodeInvalidGrant, protocolError(t, err).Code,
		"the sibling refresh token must die with the session")

	children, err := h.sessionRepo.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
	_, err = h.sessions.Get(ctx, root.ID)
	assert.NoError(t, err, "revocation must not reach the root session")
}

// TestPurpose: Verifies that impersonated sessions lose superuser and impersonation rights in descended client sessions.
// Scope: Unit Test
// Security: Privilege chaining prevention during impersonation
// Expected: The client session's authz map carries the ordinary grants but not the excluded ones.
func TestOIDC_Service_CreateOIDCSession_ImpersonationExclusions(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "root-admin", "correct horse", "acme-corp",
		authz.ResourceSuperuser, "resource:read")
	root := h.login(t, "root-admin", "correct horse")
	ctx := context.Background()

	// Mark the root session as impersonated
	root, err := h.sessions.Update(ctx, root.ID,
		session.F(session.FieldAuthnImpersonatorSID, "imp-session"),
		session.F(session.FieldAuthnImpersonatorCID, "imp-cred"))
	require.NoError(t, err)

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))
	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)

	sess, err := h.svc.GetSessionByAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Contains(t, sess.Authorization.Authz["acme-corp"], "resource:read")
	for _, resources := range sess.Authorization.Authz {
		assert.NotContains(t, resources, authz.ResourceSuperuser)
		assert.NotContains(t, resources, authz.ResourceImpersonate)
	}
	assert.Equal(t, "imp-session", sess.Authentication.ImpersonatorSessionID)
}

// TestPurpose: Verifies that logout deletes the root session, its client sessions, and all their tokens.
// Scope: Unit Test
// Security: Single logout completeness
// Expected: Access token and session cookie stop resolving after logout.
func TestOIDC_Service_Logout_RevokesDescendants(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	h.addUser(t, "alice", "correct horse", "acme-corp")
	ctx := context.Background()

	root, sci, err := h.svc.Login(ctx, "alice", "correct horse", "")
	require.NoError(t, err)

	code := authorizeAndGetCode(t, h, root, authorizeRequest("client-1", "openid", "tenant:acme-corp"))
	resp, err := h.svc.ExchangeAuthorizationCode(ctx, "client-1", code, "")
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, root))

	assert.Empty(t, h.sessionRepo.sessions)
	_, err = h.svc.GetSessionByAccessToken(ctx, resp.AccessToken)
	assert.Error(t, err)
	_, err = h.svc.GetSessionByCookieID(ctx, sci)
	assert.Error(t, err)
}

// TestPurpose: Verifies that redirect targets are validated against the client's registered redirect URIs.
// Scope: Unit Test
// Security: Post-logout and authorize redirects must never follow unregistered targets
// Expected: The registered URI passes; unregistered targets and unknown clients fail.
func TestOIDC_Service_ValidateRedirectURI(t *testing.T) {
	h := newHarness(t, nil)
	h.addClient(t, "client-1", "secret-1")
	ctx := context.Background()

	assert.NoError(t, h.svc.ValidateRedirectURI(ctx, "client-1", "https://app.example.com/callback"))
	assert.Error(t, h.svc.ValidateRedirectURI(ctx, "client-1", "https://evil.example.net/callback"))
	assert.Error(t, h.svc.ValidateRedirectURI(ctx, "no-such-client", "https://app.example.com/callback"))
}
