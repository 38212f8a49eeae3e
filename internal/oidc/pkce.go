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
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// PKCE challenge methods (RFC 7636)
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// ErrPKCEVerificationFailed indicates the code verifier did not match
// the stored challenge
var ErrPKCEVerificationFailed = errors.New("pkce verification failed")

// ValidatePKCEMethod checks a code_challenge_method parameter
func ValidatePKCEMethod(method string) bool {
	return method == PKCEMethodPlain || method == PKCEMethodS256
}

// VerifyPKCE checks a token request's code_verifier against the
// challenge recorded with the authorization code. A code issued
// without a challenge requires no verifier.
func VerifyPKCE(challenge, method, verifier string) error {
	if challenge == "" {
		return nil
	}
	if verifier == "" {
		return ErrPKCEVerificationFailed
	}

	var computed string
	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(hash[:])
	case PKCEMethodPlain, "":
		computed = verifier
	default:
		return ErrPKCEVerificationFailed
	}

	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return ErrPKCEVerificationFailed
	}
	return nil
}
