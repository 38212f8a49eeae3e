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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse/gatehouse/internal/cookie"
	"github.com/gatehouse/gatehouse/internal/observability/logger"
	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/otp"
	"github.com/gatehouse/gatehouse/internal/registration"
)

type loginRequest struct {
	Ident    string `json:"ident"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// Login godoc
// @Summary Establishes the root SSO session
// @Description Authenticates a user and sets the root-domain session
// @Description cookie. Users with an active TOTP factor must supply a
// @Description valid code.
// @Accept json
// @Success 200 {object} map[string]string
// @Failure 401
// @Router /public/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Ident == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "ident and password are required")
		return
	}

	root, sci, err := h.oidcService.Login(r.Context(), req.Ident, req.Password, req.OTP)
	if err != nil {
		// One answer for every failure mode
		respondError(w, http.StatusUnauthorized, "login failed")
		return
	}

	if err := h.cookieService.SetCookie(w, cookie.RootDomainID, sci); err != nil {
		slog.ErrorContext(r.Context(), "failed to set root cookie",
			logger.SessionID(root.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to establish session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": "OK"})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register godoc
// @Summary Completes an invitation-based registration
// @Accept json
// @Param token path string true "Invitation token"
// @Router /public/register/{token} [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	credentialsID, err := h.registrationService.Complete(r.Context(), token, req.Username, req.Password)
	if err != nil {
		switch err {
		case registration.ErrRegistrationNotFound, registration.ErrInvalidToken:
			respondError(w, http.StatusNotFound, "registration not found")
		case registration.ErrRegistrationExpired:
			respondError(w, http.StatusGone, "registration expired")
		default:
			slog.ErrorContext(r.Context(), "registration failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"credentials_id": credentialsID})
}

// TOTPStatus godoc
// @Summary TOTP enrollment state of the logged-in user
// @Description Reports whether TOTP is active. When inactive, a fresh
// @Description secret is prepared and returned for enrollment.
// @Produce json
// @Router /public/totp [get]
func (h *Handler) TOTPStatus(w http.ResponseWriter, r *http.Request) {
	sess := h.requireRootSession(w, r)
	if sess == nil {
		return
	}

	active, err := h.otpService.HasActivatedTOTP(r.Context(), sess.Credentials.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read totp state",
			logger.CredentialsID(sess.Credentials.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read totp state")
		return
	}
	if active {
		respondJSON(w, http.StatusOK, map[string]any{"active": true})
		return
	}

	secret, otpauth, err := h.otpService.Prepare(r.Context(), sess.Credentials.ID, sess.Credentials.Username)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to prepare totp secret",
			logger.CredentialsID(sess.Credentials.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to prepare totp secret")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"active":  false,
		"secret":  secret,
		"otpauth": otpauth,
	})
}

type totpRequest struct {
	OTP string `json:"otp"`
}

// SetTOTP godoc
// @Summary Activates the prepared TOTP secret
// @Accept json
// @Router /public/set-totp [put]
func (h *Handler) SetTOTP(w http.ResponseWriter, r *http.Request) {
	sess := h.requireRootSession(w, r)
	if sess == nil {
		return
	}

	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OTP == "" {
		respondError(w, http.StatusBadRequest, "otp is required")
		return
	}

	if err := h.otpService.Activate(r.Context(), sess.Credentials.ID, req.OTP); err != nil {
		if err == otp.ErrInvalidOTP || err == otp.ErrTOTPNotFound {
			respondError(w, http.StatusBadRequest, "invalid otp")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to activate totp")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": "OK"})
}

// UnsetTOTP godoc
// @Summary Deactivates the TOTP factor
// @Accept json
// @Router /public/unset-totp [put]
func (h *Handler) UnsetTOTP(w http.ResponseWriter, r *http.Request) {
	sess := h.requireRootSession(w, r)
	if sess == nil {
		return
	}

	// Removing the factor requires proving possession of it
	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OTP == "" {
		respondError(w, http.StatusBadRequest, "otp is required")
		return
	}
	if err := h.oidcService.VerifyFactor(r.Context(), sess.Credentials.ID, req.OTP); err != nil {
		if err == oidc.ErrLoginFailed || err == otp.ErrInvalidOTP {
			respondError(w, http.StatusBadRequest, "invalid otp")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to verify otp")
		return
	}

	if err := h.otpService.Deactivate(r.Context(), sess.Credentials.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to deactivate totp")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": "OK"})
}
