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

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouse/gatehouse/internal/cookie"
	"github.com/gatehouse/gatehouse/internal/observability/logger"
	"github.com/gatehouse/gatehouse/internal/oidc"
)

// Grant types accepted by the token endpoint
const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// Token godoc
// @Summary OAuth2 token endpoint
// @Description Exchanges authorization codes and refresh tokens for
// @Description access tokens. Clients authenticate with HTTP Basic or
// @Description form credentials.
// @Accept x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "authorization_code or refresh_token"
// @Router /openidconnect/token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeInvalidRequest, "malformed form body"))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	if clientID == "" {
		respondOIDCError(w, http.StatusUnauthorized,
			oidc.NewError(oidc.ErrCodeInvalidClient, "client authentication required"))
		return
	}
	c, err := h.oidcService.AuthenticateClient(r.Context(), clientID, clientSecret)
	if err != nil {
		respondOIDCError(w, http.StatusUnauthorized,
			oidc.NewError(oidc.ErrCodeInvalidClient, "client authentication failed"))
		return
	}

	grantType := r.PostFormValue("grant_type")
	if err := h.oidcService.ValidateClientGrantType(c, grantType); err != nil {
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeUnauthorizedClient, "grant type not allowed for this client"))
		return
	}

	var resp *oidc.TokenResponse
	switch grantType {
	case grantAuthorizationCode:
		resp, err = h.oidcService.ExchangeAuthorizationCode(r.Context(),
			clientID, r.PostFormValue("code"), r.PostFormValue("code_verifier"))
	case grantRefreshToken:
		resp, err = h.oidcService.RefreshAccessToken(r.Context(),
			clientID, r.PostFormValue("refresh_token"), splitScope(r.PostFormValue("scope")))
	default:
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeUnsupportedGrantType, "unsupported grant type"))
		return
	}
	if err != nil {
		if oidcErr, ok := err.(*oidc.Error); ok {
			respondOIDCError(w, http.StatusBadRequest, oidcErr)
			return
		}
		slog.ErrorContext(r.Context(), "token grant failed",
			logger.ClientID(clientID), logger.GrantType(grantType), logger.Error(err))
		respondOIDCError(w, http.StatusInternalServerError,
			oidc.NewError(oidc.ErrCodeServerError, "token issuance failed"))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	respondJSON(w, http.StatusOK, resp)
}

// clientCredentials reads client authentication from HTTP Basic or,
// failing that, the form body. Public clients send only client_id.
func clientCredentials(r *http.Request) (clientID, clientSecret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

// Revoke godoc
// @Summary OAuth2 token revocation endpoint (RFC 7009)
// @Accept x-www-form-urlencoded
// @Router /openidconnect/token/revoke [post]
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeInvalidRequest, "malformed form body"))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	if _, err := h.oidcService.AuthenticateClient(r.Context(), clientID, clientSecret); err != nil {
		respondOIDCError(w, http.StatusUnauthorized,
			oidc.NewError(oidc.ErrCodeInvalidClient, "client authentication failed"))
		return
	}

	if err := h.oidcService.RevokeToken(r.Context(), clientID,
		r.PostFormValue("token"), r.PostFormValue("token_type_hint")); err != nil {
		slog.ErrorContext(r.Context(), "token revocation failed",
			logger.ClientID(clientID), logger.Error(err))
		respondOIDCError(w, http.StatusInternalServerError,
			oidc.NewError(oidc.ErrCodeServerError, "revocation failed"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Userinfo godoc
// @Summary OIDC userinfo endpoint
// @Description Returns the claims of the session behind a bearer
// @Description access token.
// @Produce json
// @Router /openidconnect/userinfo [get]
func (h *Handler) Userinfo(w http.ResponseWriter, r *http.Request) {
	accessToken := bearerToken(r)
	if accessToken == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo"`)
		respondError(w, http.StatusUnauthorized, "bearer token required")
		return
	}
	sess, err := h.oidcService.GetSessionByAccessToken(r.Context(), accessToken)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		respondError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	respondJSON(w, http.StatusOK, oidc.BuildUserinfo(h.oidcService.Issuer(), sess))
}

// bearerToken extracts a bearer token from the Authorization header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

// PublicKeys godoc
// @Summary JWKS endpoint
// @Description Publishes the public halves of all still-valid ID token
// @Description signing keys.
// @Produce json
// @Router /openidconnect/public_keys [get]
func (h *Handler) PublicKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.oidcService.Signer().JWKS(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to build JWKS", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Logout godoc
// @Summary Ends the root SSO session
// @Description Deletes the root session, everything descended from it
// @Description and the session cookie.
// @Router /openidconnect/logout [get]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	root := h.rootSession(r)
	h.cookieService.DeleteCookie(w, cookie.RootDomainID)
	if root == nil {
		respondJSON(w, http.StatusOK, map[string]string{"result": "OK"})
		return
	}
	if err := h.oidcService.Logout(r.Context(), root); err != nil {
		slog.ErrorContext(r.Context(), "logout failed",
			logger.SessionID(root.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	if target := r.URL.Query().Get("redirect_uri"); target != "" {
		if h.validPostLogoutRedirect(r.Context(), r.URL.Query().Get("client_id"), target) {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		slog.WarnContext(r.Context(), "untrusted post-logout redirect refused",
			logger.RedirectURI(target))
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": "OK"})
}

// validPostLogoutRedirect accepts only redirect targets the server
// already trusts: a redirect URI registered for the named client, or
// the login UI itself. Following anything else would turn the
// end-session endpoint into an open redirect.
func (h *Handler) validPostLogoutRedirect(ctx context.Context, clientID, target string) bool {
	if clientID != "" {
		return h.oidcService.ValidateRedirectURI(ctx, clientID, target) == nil
	}
	if h.authWebUIBaseURL == "" {
		return false
	}
	if target == h.authWebUIBaseURL {
		return true
	}
	// A bare prefix check would trust lookalike hosts such as
	// base.evil.net, so the base must be followed by a delimiter
	rest, ok := strings.CutPrefix(target, h.authWebUIBaseURL)
	return ok && (rest[0] == '/' || rest[0] == '?' || rest[0] == '#')
}

// Discovery godoc
// @Summary OIDC discovery document
// @Produce json
// @Router /.well-known/openid-configuration [get]
func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	issuer := h.oidcService.Issuer()
	base := h.publicAPIBaseURL
	respondJSON(w, http.StatusOK, map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                base + "/openidconnect/authorize",
		"token_endpoint":                        base + "/openidconnect/token",
		"revocation_endpoint":                   base + "/openidconnect/token/revoke",
		"userinfo_endpoint":                     base + "/openidconnect/userinfo",
		"jwks_uri":                              base + "/openidconnect/public_keys",
		"end_session_endpoint":                  base + "/openidconnect/logout",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{grantAuthorizationCode, grantRefreshToken},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{oidc.SigningAlgorithm},
		"scopes_supported":                      []string{"openid", "profile", "email", "tenant", "cookie"},
		"code_challenge_methods_supported":      []string{oidc.PKCEMethodPlain, oidc.PKCEMethodS256},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		"claims_supported": []string{
			"iss", "sub", "aud", "exp", "iat", "sid", "nonce",
			"preferred_username", "email", "phone_number", "tenants", "resources",
		},
	})
}
