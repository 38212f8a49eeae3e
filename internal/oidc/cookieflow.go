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

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/token"
)

// ExchangeCodeForCookie consumes an authorization code on behalf of a
// cookie entry point. The session must have been minted with the
// cookie scope; an access token is issued and kept on the session so
// the introspection endpoint can forward it as a Bearer header.
func (s *Service) ExchangeCodeForCookie(ctx context.Context, domainID, code string) (*session.Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "malformed authorization code")
	}
	t, err := s.tokens.GetAndDelete(ctx, token.TypeAuthorizationCode, raw)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "invalid authorization code")
	}
	sess, err := s.sessionFromToken(ctx, t)
	if err != nil {
		return nil, NewError(ErrCodeInvalidGrant, "session no longer valid")
	}
	if !HasScope(sess.OAuth2.Scope, ScopeCookie) || len(sess.Cookie.SessionCookieID) == 0 {
		return nil, NewError(ErrCodeInvalidGrant, "session has no cookie grant")
	}

	accessRaw, err := s.tokens.Create(ctx, token.TypeAccessToken, sess.ID,
		s.cfg.AccessTokenLength, s.cfg.AccessTokenExpiration, token.CreateOptions{})
	if err != nil {
		return nil, NewError(ErrCodeServerError, "failed to issue access token")
	}

	sess, err = s.sessions.Update(ctx, sess.ID,
		session.F(session.FieldCookieDomainID, domainID),
		session.F(session.FieldOAuth2AccessToken, base64.RawURLEncoding.EncodeToString(accessRaw)),
	)
	if err != nil {
		return nil, NewError(ErrCodeServerError, "failed to bind session to cookie domain")
	}

	s.auditLog.Log(ctx, audit.Event{
		Type:          audit.TypeTokenIssued,
		CredentialsID: sess.Credentials.ID,
		SessionID:     sess.ID,
		ClientID:      sess.OAuth2.ClientID,
		Metadata:      map[string]any{"cookie_domain": domainID},
	})
	return sess, nil
}
