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
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse/gatehouse/internal/cookie"
	"github.com/gatehouse/gatehouse/internal/observability/logger"
	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/session"
)

// introspectableFields whitelists the add= query values the
// introspection endpoint may expose as X- headers
var introspectableFields = map[string]func(*session.Session) string{
	"credentials-id": func(s *session.Session) string { return s.Credentials.ID },
	"username":       func(s *session.Session) string { return s.Credentials.Username },
	"email":          func(s *session.Session) string { return s.Credentials.Email },
	"phone":          func(s *session.Session) string { return s.Credentials.Phone },
	"tenants": func(s *session.Session) string {
		return strings.Join(s.Authorization.AssignedTenants, " ")
	},
}

// CookieIntrospect godoc
// @Summary Reverse proxy introspection endpoint
// @Description Called by nginx auth_request. Translates the session
// @Description cookie into an Authorization Bearer header and scrubs
// @Description the cookie from the forwarded Cookie header.
// @Param add query []string false "Whitelisted session fields to expose as X- headers"
// @Param keepcookie query bool false "Keep the session cookie in the forwarded Cookie header"
// @Success 200
// @Failure 401
// @Router /cookie/nginx [post]
func (h *Handler) CookieIntrospect(w http.ResponseWriter, r *http.Request) {
	sci, domainID, err := h.cookieService.SessionCookieID(r)
	if err != nil {
		h.cookieService.DeleteCookie(w, cookie.RootDomainID)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	sess, err := h.oidcService.GetSessionByCookieID(r.Context(), sci)
	if err != nil {
		h.cookieService.DeleteCookie(w, domainID)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	h.oidcService.Sessions().Touch(r.Context(), sess)

	if sess.OAuth2.AccessToken != "" {
		w.Header().Set("Authorization", "Bearer "+sess.OAuth2.AccessToken)
	}

	if r.URL.Query().Get("keepcookie") == "" {
		scrubbed := scrubCookieHeader(strings.Join(r.Header.Values("Cookie"), "; "), h.cookieService.Name())
		w.Header().Set("Cookie", scrubbed)
	}

	for _, field := range r.URL.Query()["add"] {
		extract, ok := introspectableFields[field]
		if !ok {
			continue
		}
		if value := extract(sess); value != "" {
			w.Header().Set("X-"+headerName(field), value)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// scrubCookieHeader removes one occurrence of the session cookie from
// a Cookie header value. Only one is removed on purpose: a second
// cookie with our name belongs to another domain and must travel on to
// the application.
func scrubCookieHeader(header, name string) string {
	pattern := regexp.MustCompile(fmt.Sprintf(`(^%[1]s=[^;]*(; ?)?|; ?%[1]s=[^;]*)`, regexp.QuoteMeta(name)))
	if loc := pattern.FindStringIndex(header); loc != nil {
		return header[:loc[0]] + header[loc[1]:]
	}
	return header
}

// headerName turns an add= field into its X- header suffix
func headerName(field string) string {
	parts := strings.Split(field, "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "-")
}

// CookieEntry godoc
// @Summary Cookie entry point for hosted applications
// @Description Exchanges an authorization code for the application
// @Description domain's session cookie and redirects into the
// @Description application.
// @Param domain_id path string true "Configured cookie domain"
// @Param code query string true "Authorization code"
// @Router /cookie/entry/{domain_id} [get]
func (h *Handler) CookieEntry(w http.ResponseWriter, r *http.Request) {
	domainID := chi.URLParam(r, "domain_id")
	domain, err := h.cookieService.Domain(domainID)
	if err != nil || domainID == cookie.RootDomainID {
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeInvalidDomain, "unknown cookie domain"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		respondOIDCError(w, http.StatusBadRequest,
			oidc.NewError(oidc.ErrCodeInvalidRequest, "code is required"))
		return
	}

	sess, err := h.oidcService.ExchangeCodeForCookie(r.Context(), domainID, code)
	if err != nil {
		if oidcErr, ok := err.(*oidc.Error); ok {
			respondOIDCError(w, http.StatusBadRequest, oidcErr)
			return
		}
		slog.ErrorContext(r.Context(), "cookie entry failed",
			logger.CookieDomainID(domainID), logger.Error(err))
		respondOIDCError(w, http.StatusInternalServerError,
			oidc.NewError(oidc.ErrCodeServerError, "cookie entry failed"))
		return
	}

	if err := h.cookieService.SetCookie(w, domainID, sess.Cookie.SessionCookieID); err != nil {
		respondOIDCError(w, http.StatusInternalServerError,
			oidc.NewError(oidc.ErrCodeServerError, "failed to set cookie"))
		return
	}

	// Only the configured redirect is followed; honoring a query
	// parameter here would be an open redirect
	http.Redirect(w, r, domain.RedirectURI, http.StatusFound)
}
