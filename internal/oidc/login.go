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
	"errors"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/credentials"
	"github.com/gatehouse/gatehouse/internal/otp"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/token"
)

// ErrLoginFailed hides the specific reason a login was rejected
var ErrLoginFailed = errors.New("login failed")

// Authentication factor names
const (
	FactorPassword = "password"
	FactorTOTP     = "totp"
)

// Login authenticates a user and establishes a root SSO session bound
// to a fresh session cookie id. Users with an active TOTP factor must
// supply a valid code. All rejection paths collapse into
// ErrLoginFailed so responses cannot be used to probe for accounts.
func (s *Service) Login(ctx context.Context, ident, password, otpCode string) (*session.Session, []byte, error) {
	rec, err := s.credentials.Locate(ctx, ident)
	if err != nil {
		s.auditLog.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Metadata: map[string]any{"ident": ident, "reason": "not_found"},
		})
		return nil, nil, ErrLoginFailed
	}

	if err := s.credentials.Authenticate(ctx, rec.ID, password); err != nil {
		s.auditLog.Log(ctx, audit.Event{
			Type:          audit.TypeLoginFailed,
			CredentialsID: rec.ID,
			Metadata:      map[string]any{"reason": "invalid_password"},
		})
		return nil, nil, ErrLoginFailed
	}

	loginFactors := []string{FactorPassword}
	availableFactors := []string{FactorPassword}
	totpActive, err := s.otp.HasActivatedTOTP(ctx, rec.ID)
	if err != nil {
		return nil, nil, err
	}
	if totpActive {
		availableFactors = append(availableFactors, FactorTOTP)
		if err := s.otp.Verify(ctx, rec.ID, otpCode); err != nil {
			s.auditLog.Log(ctx, audit.Event{
				Type:          audit.TypeLoginFailed,
				CredentialsID: rec.ID,
				Metadata:      map[string]any{"reason": "invalid_otp"},
			})
			return nil, nil, ErrLoginFailed
		}
		loginFactors = append(loginFactors, FactorTOTP)
	}

	// The session records which of the provider's login methods was
	// used; providers with none configured fall back to the default
	loginDescriptor := "default"
	if descriptors, err := s.credentials.LoginDescriptors(ctx, rec.ID); err == nil && len(descriptors) > 0 {
		loginDescriptor = descriptors[0].ID
	}

	root, err := s.CreateRootSession(ctx, rec, loginDescriptor, loginFactors, availableFactors, totpActive)
	if err != nil {
		return nil, nil, err
	}

	s.auditLog.Log(ctx, audit.Event{
		Type:          audit.TypeLoginSuccess,
		CredentialsID: rec.ID,
		SessionID:     root.ID,
	})
	return root, root.Cookie.SessionCookieID, nil
}

// CreateRootSession builds the persisted root session for freshly
// authenticated credentials and mints its session cookie id
func (s *Service) CreateRootSession(ctx context.Context, rec *credentials.Record, loginDescriptor string, loginFactors, availableFactors []string, totpSet bool) (*session.Session, error) {
	assigned, err := s.tenants.ListByCredentialsID(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	authzMap, err := s.authz.Resolve(ctx, rec.ID, assigned, nil)
	if err != nil {
		return nil, err
	}

	fields := []session.Field{
		session.F(session.FieldCredentialsID, rec.ID),
		session.F(session.FieldCredentialsUsername, rec.Username),
		session.F(session.FieldCredentialsEmail, rec.Email),
		session.F(session.FieldCredentialsPhone, rec.Phone),
		session.F(session.FieldAuthnLoginDescriptor, loginDescriptor),
		session.F(session.FieldAuthnLoginFactors, loginFactors),
		session.F(session.FieldAuthnAvailableFactors, availableFactors),
		session.F(session.FieldAuthnTOTPSet, totpSet),
		session.F(session.FieldAuthzAssignedTenants, assigned),
		session.F(session.FieldAuthzAuthz, authzMap),
	}
	if rec.CreatedAt != nil {
		fields = append(fields, session.F(session.FieldCredentialsCreatedAt, *rec.CreatedAt))
	}
	if rec.ModifiedAt != nil {
		fields = append(fields, session.F(session.FieldCredentialsModifiedAt, *rec.ModifiedAt))
	}
	if len(rec.Custom) > 0 {
		fields = append(fields, session.F(session.FieldCredentialsCustom, rec.Custom))
	}

	root, err := s.sessions.Create(ctx, session.TypeRoot, "", 0, fields...)
	if err != nil {
		return nil, err
	}

	sci, err := s.tokens.Create(ctx, token.TypeSessionCookie, root.ID,
		s.cfg.SessionCookieLength, root.ExpiresAt.Sub(root.CreatedAt), token.CreateOptions{})
	if err != nil {
		return nil, err
	}
	root, err = s.sessions.Update(ctx, root.ID,
		session.F(session.FieldCookieSessionCookieID, sci))
	if err != nil {
		return nil, err
	}
	return root, nil
}

// Logout deletes a root session and everything descended from it
func (s *Service) Logout(ctx context.Context, root *session.Session) error {
	if err := s.sessions.Delete(ctx, root.ID); err != nil {
		return err
	}
	s.auditLog.Log(ctx, audit.Event{
		Type:          audit.TypeLogout,
		CredentialsID: root.Credentials.ID,
		SessionID:     root.ID,
	})
	return nil
}

// VerifyFactor satisfies callers needing a second-factor check outside
// of login, such as TOTP management endpoints
func (s *Service) VerifyFactor(ctx context.Context, credentialsID, code string) error {
	err := s.otp.Verify(ctx, credentialsID, code)
	if err == otp.ErrTOTPNotFound || err == otp.ErrTOTPNotActive {
		return ErrLoginFailed
	}
	return err
}
