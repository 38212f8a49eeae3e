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
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatehouse/gatehouse/internal/session"
)

// BuildUserinfo projects a session into the claim set served by the
// userinfo endpoint and embedded in ID tokens. All datetimes are
// integer Unix seconds.
func BuildUserinfo(issuer string, sess *session.Session) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": sess.Credentials.ID,
		"iat": sess.CreatedAt.Unix(),
		"sid": sess.ID,
	}

	if !sess.ExpiresAt.IsZero() {
		claims["exp"] = sess.ExpiresAt.Unix()
	}
	if sess.ParentID != "" {
		claims["psid"] = sess.ParentID
	}
	if sess.OAuth2.ClientID != "" {
		claims["aud"] = sess.OAuth2.ClientID
		claims["azp"] = sess.OAuth2.ClientID
	}
	if len(sess.OAuth2.Scope) > 0 {
		claims["scope"] = strings.Join(sess.OAuth2.Scope, " ")
	}
	if sess.OAuth2.Nonce != "" {
		claims["nonce"] = sess.OAuth2.Nonce
	}

	if sess.Credentials.Username != "" {
		claims["preferred_username"] = sess.Credentials.Username
	}
	if sess.Credentials.Email != "" {
		claims["email"] = sess.Credentials.Email
	}
	if sess.Credentials.Phone != "" {
		claims["phone_number"] = sess.Credentials.Phone
	}
	if len(sess.Credentials.Custom) > 0 {
		claims["custom"] = sess.Credentials.Custom
	}
	if sess.Credentials.ModifiedAt != nil {
		claims["updated_at"] = sess.Credentials.ModifiedAt.Unix()
	}
	if sess.Credentials.CreatedAt != nil {
		claims["created_at"] = sess.Credentials.CreatedAt.Unix()
	}

	if sess.IsAnonymous() {
		claims["anonymous"] = true
	}
	if trackID := session.FormatTrackID(sess.TrackID); trackID != "" {
		claims["track_id"] = trackID
	}

	if sess.Authentication.ImpersonatorSessionID != "" {
		claims["impersonator_sid"] = sess.Authentication.ImpersonatorSessionID
	}
	if sess.Authentication.ImpersonatorCredentialsID != "" {
		claims["impersonator_cid"] = sess.Authentication.ImpersonatorCredentialsID
	}

	if sess.Authentication.TOTPSet {
		claims["totp_set"] = true
	}
	if len(sess.Authentication.AvailableFactors) > 0 {
		claims["available_factors"] = sess.Authentication.AvailableFactors
	}
	if sess.Authentication.LoginDescriptor != "" {
		claims["ldid"] = sess.Authentication.LoginDescriptor
	}
	if len(sess.Authentication.LoginFactors) > 0 {
		claims["factors"] = sess.Authentication.LoginFactors
	}
	if len(sess.Authentication.ExternalLoginOptions) > 0 {
		claims["external_login_enabled"] = true
	}

	if len(sess.Authorization.Authz) > 0 {
		claims["resources"] = sess.Authorization.Authz
	}
	if len(sess.Authorization.AssignedTenants) > 0 {
		claims["tenants"] = sess.Authorization.AssignedTenants
	}

	return claims
}
