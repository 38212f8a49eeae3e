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
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/gatehouse/gatehouse/internal/cookie"
	"github.com/gatehouse/gatehouse/internal/observability/logger"
	"github.com/gatehouse/gatehouse/internal/session"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// rootSession resolves the root SSO session from the request's cookie.
// A nil return means the user is not logged in; expired and unknown
// cookies both count as not logged in.
func (h *Handler) rootSession(r *http.Request) *session.Session {
	sci, domainID, err := h.cookieService.SessionCookieID(r)
	if err != nil || domainID != cookie.RootDomainID {
		return nil
	}
	sess, err := h.oidcService.GetSessionByCookieID(r.Context(), sci)
	if err != nil {
		return nil
	}
	if sess.Type != session.TypeRoot {
		return nil
	}
	return sess
}

// requireRootSession resolves the root session or replies 401 with a
// cookie deletion. Used by the account-facing endpoints.
func (h *Handler) requireRootSession(w http.ResponseWriter, r *http.Request) *session.Session {
	sess := h.rootSession(r)
	if sess == nil {
		h.cookieService.DeleteCookie(w, cookie.RootDomainID)
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return nil
	}
	return sess
}
