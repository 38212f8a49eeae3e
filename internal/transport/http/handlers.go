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

// @title Gatehouse API
// @version 1.0.0
// @description OpenID Connect authorization server with cookie-based
// @description session introspection for reverse proxies.

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gatehouse/gatehouse/internal/cookie"
	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/otp"
	"github.com/gatehouse/gatehouse/internal/registration"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	oidcService         *oidc.Service
	cookieService       *cookie.Service
	otpService          *otp.Service
	registrationService *registration.Service

	// authWebUIBaseURL is where unauthenticated users are sent to log in
	authWebUIBaseURL string
	// publicAPIBaseURL is the externally visible base of this API
	publicAPIBaseURL string
}

// NewHandler creates a new HTTP handler. The registration service may
// be nil when self-registration is disabled.
func NewHandler(
	oidcService *oidc.Service,
	cookieService *cookie.Service,
	otpService *otp.Service,
	registrationService *registration.Service,
	authWebUIBaseURL string,
	publicAPIBaseURL string,
) *Handler {
	return &Handler{
		oidcService:         oidcService,
		cookieService:       cookieService,
		otpService:          otpService,
		registrationService: registrationService,
		authWebUIBaseURL:    authWebUIBaseURL,
		publicAPIBaseURL:    publicAPIBaseURL,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Get("/.well-known/openid-configuration", h.Discovery)

	r.Route("/openidconnect", func(r chi.Router) {
		r.Get("/authorize", h.Authorize)
		r.Post("/authorize", h.Authorize)
		r.Post("/token", h.Token)
		r.Post("/token/revoke", h.Revoke)
		r.Get("/userinfo", h.Userinfo)
		r.Get("/public_keys", h.PublicKeys)
		r.Get("/logout", h.Logout)
	})

	r.Route("/cookie", func(r chi.Router) {
		r.Post("/nginx", h.CookieIntrospect)
		r.Get("/entry/{domain_id}", h.CookieEntry)
	})

	r.Route("/public", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Get("/totp", h.TOTPStatus)
		r.Put("/set-totp", h.SetTOTP)
		r.Put("/unset-totp", h.UnsetTOTP)
		if h.registrationService != nil {
			r.Post("/register/{token}", h.Register)
		}
	})

	return r
}

// HealthCheck godoc
// @Summary Health check
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError writes a plain JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondOIDCError writes a protocol error as JSON with no-store
// caching, per RFC 6749 section 5.2
func respondOIDCError(w http.ResponseWriter, status int, oidcErr *oidc.Error) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	respondJSON(w, status, oidcErr)
}
