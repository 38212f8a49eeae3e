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

import "fmt"

// Error represents a protocol-level OAuth2/OIDC error. Errors bound
// to a valid redirect URI travel back as query parameters; the rest
// render inline.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("oidc error: %s (%s)", e.Code, e.Description)
}

// WithState attaches the client's state parameter to the error
func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

// Protocol error codes
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeServerError             = "server_error"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"

	ErrCodeInteractionRequired      = "interaction_required"
	ErrCodeLoginRequired            = "login_required"
	ErrCodeConsentRequired          = "consent_required"
	ErrCodeAccountSelectionRequired = "account_selection_required"

	// Non-standard codes for tenant and cookie handling
	ErrCodeUnauthorizedTenant = "unauthorized_tenant"
	ErrCodeTenantNotFound     = "tenant_not_found"
	ErrCodeUserHasNoTenant    = "user_has_no_tenant"
	ErrCodeInvalidRedirectURI = "invalid_redirect_uri"
	ErrCodeInvalidDomain      = "invalid_domain"
)

// NewError creates a new protocol error
func NewError(code, description string) *Error {
	return &Error{
		Code:        code,
		Description: description,
	}
}
