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

// Package otp implements time-based one-time passwords (RFC 6238).
package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// Period is the TOTP time step
	Period = 30 * time.Second
	// Digits is the code length
	Digits = 6
	// driftSteps is how many adjacent time steps are accepted, to
	// tolerate clock skew between server and authenticator
	driftSteps = 1
)

// GenerateTOTP computes the code for a secret at a point in time
func GenerateTOTP(secret []byte, at time.Time) string {
	counter := uint64(at.Unix()) / uint64(Period.Seconds())
	return hotp(secret, counter)
}

// VerifyTOTP checks a code against a secret, accepting one time step
// of drift in either direction
func VerifyTOTP(secret []byte, code string, at time.Time) bool {
	if len(code) != Digits {
		return false
	}
	counter := int64(uint64(at.Unix()) / uint64(Period.Seconds()))
	for delta := int64(-driftSteps); delta <= driftSteps; delta++ {
		expected := hotp(secret, uint64(counter+delta))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// hotp computes the HMAC-based code of RFC 4226 for one counter value
func hotp(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	// Dynamic truncation
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, value%1000000)
}
