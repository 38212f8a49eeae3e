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
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gatehouse/gatehouse/internal/cookie"
	"github.com/gatehouse/gatehouse/internal/observability/logger"
	"github.com/gatehouse/gatehouse/internal/oidc"
)

// Authorize godoc
// @Summary OAuth2/OIDC authorization endpoint
// @Description Starts the authorization code flow. Users without a
// @Description root SSO session are sent to the login UI.
// @Param response_type query string true "Must be code"
// @Param client_id query string true "Client identifier"
// @Param redirect_uri query string true "Registered redirect URI"
// @Param scope query string true "Space-separated scope, must include openid"
// @Param state query string false "Opaque client state"
// @Param prompt query string false "none, login or select_account"
// @Router /openidconnect/authorize [get]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	req, err := parseAuthorizeRequest(r)
	if err != nil {
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeInvalidRequest, "malformed request"))
		return
	}

	c, oidcErr := h.oidcService.ValidateAuthorizeRequest(r.Context(), req)
	if oidcErr != nil {
		if c == nil {
			// The redirect URI cannot be trusted, render inline
			respondOIDCError(w, http.StatusBadRequest, oidcErr)
			return
		}
		h.redirectError(w, r, req.RedirectURI, oidcErr)
		return
	}

	root := h.rootSession(r)

	// The prompt parameter overrides whatever session state exists
	switch req.Prompt {
	case oidc.PromptLogin:
		if root != nil {
			if err := h.oidcService.Logout(r.Context(), root); err != nil {
				slog.ErrorContext(r.Context(), "failed to delete session for prompt=login",
					logger.SessionID(root.ID), logger.Error(err))
			}
		}
		h.redirectLogin(w, r, req, "")
		return
	case oidc.PromptSelectAccount:
		h.redirectLogin(w, r, req, "")
		return
	}

	if root == nil {
		if anonymousCID := h.oidcService.AnonymousCredentialsID(); anonymousCID != "" &&
			oidc.HasScope(req.Scope, oidc.ScopeAnonymous) {
			code, oidcErr := h.oidcService.AuthorizeAnonymous(r.Context(), c, anonymousCID, req)
			if oidcErr != nil {
				h.redirectError(w, r, req.RedirectURI, oidcErr)
				return
			}
			h.redirectCode(w, r, req, code)
			return
		}
		if req.Prompt == oidc.PromptNone {
			h.redirectError(w, r, req.RedirectURI,
				oidc.NewError(oidc.ErrCodeLoginRequired, "authentication required").WithState(req.State))
			return
		}
		h.redirectLogin(w, r, req, "")
		return
	}

	// Enforced factors gate the flow until the user sets them up
	missing, err := h.oidcService.FactorsToSetup(r.Context(), root)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to evaluate enforced factors",
			logger.CredentialsID(root.Credentials.ID), logger.Error(err))
		h.redirectError(w, r, req.RedirectURI,
			oidc.NewError(oidc.ErrCodeServerError, "factor evaluation failed").WithState(req.State))
		return
	}
	if len(missing) > 0 {
		if req.Prompt == oidc.PromptNone {
			h.redirectError(w, r, req.RedirectURI,
				oidc.NewError(oidc.ErrCodeInteractionRequired, "factor setup required").WithState(req.State))
			return
		}
		h.redirectLogin(w, r, req, strings.Join(missing, " "))
		return
	}

	code, sess, oidcErr := h.oidcService.AuthorizeCodeFlow(r.Context(), c, root, req)
	if oidcErr != nil {
		h.redirectError(w, r, req.RedirectURI, oidcErr)
		return
	}

	// Touch slides the root session's expiration on activity
	h.oidcService.Sessions().Touch(r.Context(), root)

	// A cookie-scoped authorization delivers its session cookie with
	// the code redirect
	if oidc.HasScope(req.Scope, oidc.ScopeCookie) && len(sess.Cookie.SessionCookieID) > 0 {
		if err := h.cookieService.SetCookie(w, cookie.RootDomainID, sess.Cookie.SessionCookieID); err != nil {
			slog.ErrorContext(r.Context(), "failed to set session cookie",
				logger.SessionID(sess.ID), logger.Error(err))
		}
	}

	h.redirectCode(w, r, req, code)
}

// parseAuthorizeRequest reads the authorize parameters from the query
// string or, for POST, the form body
func parseAuthorizeRequest(r *http.Request) (*oidc.AuthorizeRequest, error) {
	var values url.Values
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		values = r.PostForm
	} else {
		values = r.URL.Query()
	}
	return &oidc.AuthorizeRequest{
		ResponseType:        values.Get("response_type"),
		ClientID:            values.Get("client_id"),
		RedirectURI:         values.Get("redirect_uri"),
		Scope:               splitScope(values.Get("scope")),
		State:               values.Get("state"),
		Nonce:               values.Get("nonce"),
		Prompt:              values.Get("prompt"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: values.Get("code_challenge_method"),
	}, nil
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}

// redirectCode delivers the authorization code through the redirect URI
func (h *Handler) redirectCode(w http.ResponseWriter, r *http.Request, req *oidc.AuthorizeRequest, code string) {
	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeInvalidRedirectURI, "unparsable redirect_uri"))
		return
	}
	q := target.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// redirectError delivers a protocol error through the redirect URI
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, redirectURI string, oidcErr *oidc.Error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		respondOIDCError(w, http.StatusBadRequest, oidcErr)
		return
	}
	q := target.Query()
	q.Set("error", oidcErr.Code)
	if oidcErr.Description != "" {
		q.Set("error_description", oidcErr.Description)
	}
	if oidcErr.URI != "" {
		q.Set("error_uri", oidcErr.URI)
	}
	if oidcErr.State != "" {
		q.Set("state", oidcErr.State)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// redirectLogin sends the user agent to the login UI carrying the full
// authorize URL so the flow re-enters after login. The re-entry URL
// drops the prompt parameter so a completed login proceeds instead of
// looping, and carries prompt=login when factor setup interrupted the
// flow. The status is 404 with a Location header: legacy front-ends
// follow the header while proxies will not auto-follow a non-3xx.
func (h *Handler) redirectLogin(w http.ResponseWriter, r *http.Request, req *oidc.AuthorizeRequest, setupFactors string) {
	reentry := h.authorizeURL(req, setupFactors != "")

	target, err := url.Parse(h.authWebUIBaseURL)
	if err != nil {
		respondOIDCError(w, http.StatusInternalServerError,
			oidc.NewError(oidc.ErrCodeServerError, "misconfigured login UI"))
		return
	}

	fragment := url.Values{}
	fragment.Set("redirect_uri", reentry)
	path := "/login"
	if setupFactors != "" {
		fragment.Set("setup", setupFactors)
	}
	target.Fragment = path + "?" + fragment.Encode()

	// A stale cookie would bounce the user straight back here
	h.cookieService.DeleteCookie(w, cookie.RootDomainID)

	w.Header().Set("Location", target.String())
	w.WriteHeader(http.StatusNotFound)
}

// authorizeURL rebuilds the authorize URL for re-entry after login
func (h *Handler) authorizeURL(req *oidc.AuthorizeRequest, promptLogin bool) string {
	q := url.Values{}
	q.Set("response_type", req.ResponseType)
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("scope", strings.Join(req.Scope, " "))
	if req.State != "" {
		q.Set("state", req.State)
	}
	if req.Nonce != "" {
		q.Set("nonce", req.Nonce)
	}
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", req.CodeChallengeMethod)
	}
	if promptLogin {
		q.Set("prompt", oidc.PromptLogin)
	}
	return h.publicAPIBaseURL + "/openidconnect/authorize?" + q.Encode()
}
