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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/otp"
	"github.com/gatehouse/gatehouse/internal/session"
)

// TestPurpose: Verifies a successful password login: root session, cookie id and audit trail.
// Scope: Unit Test
// Security: Session establishment
// Expected: A root session with password factor and a session cookie id that resolves back to it.
func TestOIDC_Login_PasswordSuccess(t *testing.T) {
	h := newHarness(t, nil)
	cid := h.addUser(t, "alice", "correct horse", "acme-corp")
	ctx := context.Background()

	root, sci, err := h.svc.Login(ctx, "alice", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, session.TypeRoot, root.Type)
	assert.Equal(t, cid, root.Credentials.ID)
	assert.Equal(t, []string{"password"}, root.Authentication.LoginFactors)
	assert.False(t, root.Authentication.TOTPSet)
	assert.True(t, h.auditLog.hasType(audit.TypeLoginSuccess))

	resolved, err := h.svc.GetSessionByCookieID(ctx, sci)
	require.NoError(t, err)
	assert.Equal(t, root.ID, resolved.ID)
}

// TestPurpose: Verifies that every rejection path collapses into the same opaque error.
// Scope: Unit Test
// Security: Account enumeration prevention
// Expected: Unknown user and wrong password both yield ErrLoginFailed with a failure audit event.
func TestOIDC_Login_FailuresAreOpaque(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "alice", "correct horse", "acme-corp")
	ctx := context.Background()

	_, _, err := h.svc.Login(ctx, "nobody", "whatever", "")
	assert.ErrorIs(t, err, oidc.ErrLoginFailed)

	_, _, err = h.svc.Login(ctx, "alice", "wrong password", "")
	assert.ErrorIs(t, err, oidc.ErrLoginFailed)

	assert.True(t, h.auditLog.hasType(audit.TypeLoginFailed))
	assert.Empty(t, h.sessionRepo.sessions, "failed logins must not leave sessions behind")
}

// TestPurpose: Verifies that an activated TOTP factor is mandatory at login.
// Scope: Unit Test
// Security: Second factor enforcement
// Expected: Missing or wrong code fails opaquely; a valid code logs in with both factors recorded.
func TestOIDC_Login_TOTPEnforced(t *testing.T) {
	h := newHarness(t, nil)
	cid := h.addUser(t, "alice", "correct horse", "acme-corp")
	ctx := context.Background()

	_, authURL, err := h.otp.Prepare(ctx, cid, "alice")
	require.NoError(t, err)
	assert.Contains(t, authURL, "otpauth://totp/")
	secret := h.otpRepo.secrets[cid].Secret
	require.NoError(t, h.otp.Activate(ctx, cid, otp.GenerateTOTP(secret, time.Now())))

	_, _, err = h.svc.Login(ctx, "alice", "correct horse", "")
	assert.ErrorIs(t, err, oidc.ErrLoginFailed)

	_, _, err = h.svc.Login(ctx, "alice", "correct horse", "000000")
	assert.ErrorIs(t, err, oidc.ErrLoginFailed)

	root, _, err := h.svc.Login(ctx, "alice", "correct horse", otp.GenerateTOTP(secret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, []string{"password", "totp"}, root.Authentication.LoginFactors)
	assert.True(t, root.Authentication.TOTPSet)
}

// TestPurpose: Verifies that enforced factors are reported until the user sets them up.
// Scope: Unit Test
// Security: Factor enforcement policy
// Expected: totp listed as missing before activation, empty after.
func TestOIDC_Login_FactorsToSetup(t *testing.T) {
	h := newHarness(t, func(cfg *oidc.Config) {
		cfg.EnforceFactors = []string{"totp"}
	})
	cid := h.addUser(t, "alice", "correct horse", "acme-corp")
	root := h.login(t, "alice", "correct horse")
	ctx := context.Background()

	missing, err := h.svc.FactorsToSetup(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"totp"}, missing)

	_, _, err = h.otp.Prepare(ctx, cid, "alice")
	require.NoError(t, err)
	secret := h.otpRepo.secrets[cid].Secret
	require.NoError(t, h.otp.Activate(ctx, cid, otp.GenerateTOTP(secret, time.Now())))

	missing, err = h.svc.FactorsToSetup(ctx, root)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

// TestPurpose: Verifies the standalone factor check used by TOTP management endpoints.
// Scope: Unit Test
// Security: Step-up verification outside login
// Expected: Subjects without TOTP fail opaquely; a valid code passes, a wrong one fails.
func TestOIDC_Login_VerifyFactor(t *testing.T) {
	h := newHarness(t, nil)
	cid := h.addUser(t, "alice", "correct horse", "acme-corp")
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.VerifyFactor(ctx, cid, "123456"), oidc.ErrLoginFailed)

	_, _, err := h.otp.Prepare(ctx, cid, "alice")
	require.NoError(t, err)
	secret := h.otpRepo.secrets[cid].Secret
	require.NoError(t, h.otp.Activate(ctx, cid, otp.GenerateTOTP(secret, time.Now())))

	assert.NoError(t, h.svc.VerifyFactor(ctx, cid, otp.GenerateTOTP(secret, time.Now())))
	assert.ErrorIs(t, h.svc.VerifyFactor(ctx, cid, "000000"), otp.ErrInvalidOTP)
}
