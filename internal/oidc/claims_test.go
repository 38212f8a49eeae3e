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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/session"
)

// TestPurpose: Verifies the claim projection of a client session into userinfo and ID token claims.
// Scope: Unit Test
// Security: Claim correctness (aud, azp, nonce bind the token to one client interaction)
// Expected: Populated session fields appear under their OIDC claim names with Unix timestamps.
func TestOIDC_Claims_BuildUserinfo(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	sess := &session.Session{
		ID:        "sess-child",
		ParentID:  "sess-root",
		Type:      session.TypeOpenIDConnect,
		TrackID:   []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	sess.Credentials.ID = "mock:test:alice"
	sess.Credentials.Username = "alice"
	sess.Credentials.Email = "alice@example.com"
	sess.OAuth2.ClientID = "client-1"
	sess.OAuth2.Scope = []string{"openid", "tenant:acme-corp"}
	sess.OAuth2.Nonce = "n-0S6_WzA2Mj"
	sess.Authentication.LoginFactors = []string{"password", "totp"}
	sess.Authentication.TOTPSet = true
	sess.Authorization.AssignedTenants = []string{"acme-corp"}
	sess.Authorization.Authz = map[string][]string{"acme-corp": {"resource:read"}}

	claims := oidc.BuildUserinfo("https://auth.test.example.com", sess)

	assert.Equal(t, "https://auth.test.example.com", claims["iss"])
	assert.Equal(t, "mock:test:alice", claims["sub"])
	assert.Equal(t, "sess-child", claims["sid"])
	assert.Equal(t, "sess-root", claims["psid"])
	assert.Equal(t, now.Unix(), claims["iat"])
	assert.Equal(t, now.Add(time.Hour).Unix(), claims["exp"])
	assert.Equal(t, "client-1", claims["aud"])
	assert.Equal(t, "client-1", claims["azp"])
	assert.Equal(t, "openid tenant:acme-corp", claims["scope"])
	assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	assert.Equal(t, "alice", claims["preferred_username"])
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", claims["track_id"])
	assert.Equal(t, []string{"password", "totp"}, claims["factors"])
	assert.Equal(t, true, claims["totp_set"])
	assert.Equal(t, []string{"acme-corp"}, claims["tenants"])
	assert.Equal(t, map[string][]string{"acme-corp": {"resource:read"}}, claims["resources"])
}

// TestPurpose: Verifies that absent session fields never materialize as empty claims.
// Scope: Unit Test
// Security: Claim minimization
// Expected: Optional claims are missing, not empty; anonymous sessions carry the anonymous marker.
func TestOIDC_Claims_BuildUserinfo_OmitsEmptyFields(t *testing.T) {
	now := time.Now().UTC()
	sess := &session.Session{
		ID:        "sess-anon",
		Type:      session.TypeAnonymous,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	sess.Credentials.ID = "mock:test:anonymous"

	claims := oidc.BuildUserinfo("https://auth.test.example.com", sess)

	assert.Equal(t, true, claims["anonymous"])
	for _, absent := range []string{
		"psid", "aud", "azp", "scope", "nonce", "preferred_username",
		"email", "phone_number", "factors", "totp_set", "tenants",
		"resources", "track_id", "impersonator_sid",
	} {
		_, ok := claims[absent]
		assert.False(t, ok, "claim %q must be omitted when unset", absent)
	}
}
