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

package otp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gatehouse/gatehouse/internal/otp"
)

// RFC 6238 appendix B test vectors use the ASCII secret
// "12345678901234567890" with SHA-1
var rfcSecret = []byte("12345678901234567890")

// TestPurpose: Verifies TOTP generation against the RFC 6238 appendix B reference vectors.
// Scope: Unit Test
// Security: Interoperability with standard authenticator apps
// Expected: The last six digits of each reference code.
func TestOTP_GenerateTOTP_RFCVectors(t *testing.T) {
	cases := []struct {
		at   int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, otp.GenerateTOTP(rfcSecret, time.Unix(tc.at, 0)), "at %d", tc.at)
	}
}

// TestPurpose: Verifies code acceptance across the drift window.
// Scope: Unit Test
// Security: Clock skew tolerance must stay within one time step
// Expected: Codes from the adjacent steps pass, anything further fails.
func TestOTP_VerifyTOTP_DriftWindow(t *testing.T) {
	now := time.Unix(1111111111, 0)

	assert.True(t, otp.VerifyTOTP(rfcSecret, otp.GenerateTOTP(rfcSecret, now), now))
	assert.True(t, otp.VerifyTOTP(rfcSecret, otp.GenerateTOTP(rfcSecret, now.Add(-otp.Period)), now))
	assert.True(t, otp.VerifyTOTP(rfcSecret, otp.GenerateTOTP(rfcSecret, now.Add(otp.Period)), now))
	assert.False(t, otp.VerifyTOTP(rfcSecret, otp.GenerateTOTP(rfcSecret, now.Add(-2*otp.Period)), now))
	assert.False(t, otp.VerifyTOTP(rfcSecret, otp.GenerateTOTP(rfcSecret, now.Add(2*otp.Period)), now))
}

// TestPurpose: Verifies rejection of malformed codes.
// Scope: Unit Test
// Security: Input validation
// Expected: Wrong length and wrong digits both fail.
func TestOTP_VerifyTOTP_MalformedCodes(t *testing.T) {
	now := time.Now()
	assert.False(t, otp.VerifyTOTP(rfcSecret, "", now))
	assert.False(t, otp.VerifyTOTP(rfcSecret, "12345", now))
	assert.False(t, otp.VerifyTOTP(rfcSecret, "1234567", now))
	assert.False(t, otp.VerifyTOTP(rfcSecret, "000000", now.Add(42*time.Second)) &&
		otp.VerifyTOTP(rfcSecret, "999999", now), "fixed guesses must not verify")
}
