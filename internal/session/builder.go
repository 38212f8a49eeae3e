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

package session

import "time"

// Field paths accepted by Apply. Sessions are built and updated from
// ordered (path, value) lists so callers can compose partial updates;
// a later field for the same path wins.
const (
	FieldCredentialsID         = "credentials.id"
	FieldCredentialsUsername   = "credentials.username"
	FieldCredentialsEmail      = "credentials.email"
	FieldCredentialsPhone      = "credentials.phone"
	FieldCredentialsCreatedAt  = "credentials.created_at"
	FieldCredentialsModifiedAt = "credentials.modified_at"
	FieldCredentialsCustom     = "credentials.custom"

	FieldAuthnLoginDescriptor  = "authentication.login_descriptor"
	FieldAuthnLoginFactors     = "authentication.login_factors"
	FieldAuthnAvailableFactors = "authentication.available_factors"
	FieldAuthnExternalLogin    = "authentication.external_login_options"
	FieldAuthnTOTPSet          = "authentication.totp_set"
	FieldAuthnImpersonatorSID  = "authentication.impersonator_session_id"
	FieldAuthnImpersonatorCID  = "authentication.impersonator_credentials_id"

	FieldAuthzAssignedTenants = "authorization.assigned_tenants"
	FieldAuthzAuthz           = "authorization.authz"

	FieldOAuth2ClientID    = "oauth2.client_id"
	FieldOAuth2Scope       = "oauth2.scope"
	FieldOAuth2Nonce       = "oauth2.nonce"
	FieldOAuth2RedirectURI = "oauth2.redirect_uri"
	FieldOAuth2PKCE        = "oauth2.pkce"
	FieldOAuth2AccessToken = "oauth2.access_token"

	FieldCookieSessionCookieID = "cookie.session_cookie_id"
	FieldCookieDomainID        = "cookie.domain_id"

	FieldBatmanToken = "batman.token"

	FieldTrackID        = "track_id"
	FieldExpiresAt      = "expires_at"
	FieldMaxExpiresAt   = "max_expires_at"
	FieldTouchExtension = "touch_extension"
)

// Field is one (path, value) element of a session builder
type Field struct {
	Path  string
	Value any
}

// F is a shorthand constructor for a builder field
func F(path string, value any) Field {
	return Field{Path: path, Value: value}
}

// Apply sets builder fields on the session in order. Unknown paths and
// mismatched value types are ignored rather than failing the whole
// update; builders come from trusted internal callers.
func (s *Session) Apply(fields ...Field) {
	for _, f := range fields {
		s.applyOne(f)
	}
}

func (s *Session) applyOne(f Field) {
	switch f.Path {
	case FieldCredentialsID:
		if v, ok := f.Value.(string); ok {
			s.Credentials.ID = v
		}
	case FieldCredentialsUsername:
		if v, ok := f.Value.(string); ok {
			s.Credentials.Username = v
		}
	case FieldCredentialsEmail:
		if v, ok := f.Value.(string); ok {
			s.Credentials.Email = v
		}
	case FieldCredentialsPhone:
		if v, ok := f.Value.(string); ok {
			s.Credentials.Phone = v
		}
	case FieldCredentialsCreatedAt:
		if v, ok := f.Value.(time.Time); ok {
			s.Credentials.CreatedAt = &v
		}
	case FieldCredentialsModifiedAt:
		if v, ok := f.Value.(time.Time); ok {
			s.Credentials.ModifiedAt = &v
		}
	case FieldCredentialsCustom:
		if v, ok := f.Value.(map[string]any); ok {
			s.Credentials.Custom = v
		}
	case FieldAuthnLoginDescriptor:
		if v, ok := f.Value.(string); ok {
			s.Authentication.LoginDescriptor = v
		}
	case FieldAuthnLoginFactors:
		if v, ok := f.Value.([]string); ok {
			s.Authentication.LoginFactors = v
		}
	case FieldAuthnAvailableFactors:
		if v, ok := f.Value.([]string); ok {
			s.Authentication.AvailableFactors = v
		}
	case FieldAuthnExternalLogin:
		if v, ok := f.Value.(map[string]string); ok {
			s.Authentication.ExternalLoginOptions = v
		}
	case FieldAuthnTOTPSet:
		if v, ok := f.Value.(bool); ok {
			s.Authentication.TOTPSet = v
		}
	case FieldAuthnImpersonatorSID:
		if v, ok := f.Value.(string); ok {
			s.Authentication.ImpersonatorSessionID = v
		}
	case FieldAuthnImpersonatorCID:
		if v, ok := f.Value.(string); ok {
			s.Authentication.ImpersonatorCredentialsID = v
		}
	case FieldAuthzAssignedTenants:
		if v, ok := f.Value.([]string); ok {
			s.Authorization.AssignedTenants = v
		}
	case FieldAuthzAuthz:
		if v, ok := f.Value.(map[string][]string); ok {
			s.Authorization.Authz = v
		}
	case FieldOAuth2ClientID:
		if v, ok := f.Value.(string); ok {
			s.OAuth2.ClientID = v
		}
	case FieldOAuth2Scope:
		if v, ok := f.Value.([]string); ok {
			s.OAuth2.Scope = v
		}
	case FieldOAuth2Nonce:
		if v, ok := f.Value.(string); ok {
			s.OAuth2.Nonce = v
		}
	case FieldOAuth2RedirectURI:
		if v, ok := f.Value.(string); ok {
			s.OAuth2.RedirectURI = v
		}
	case FieldOAuth2PKCE:
		if v, ok := f.Value.(string); ok {
			s.OAuth2.PKCE = v
		}
	case FieldOAuth2AccessToken:
		if v, ok := f.Value.(string); ok {
			s.OAuth2.AccessToken = v
		}
	case FieldCookieSessionCookieID:
		if v, ok := f.Value.([]byte); ok {
			s.Cookie.SessionCookieID = v
		}
	case FieldCookieDomainID:
		if v, ok := f.Value.(string); ok {
			s.Cookie.DomainID = v
		}
	case FieldBatmanToken:
		if v, ok := f.Value.([]byte); ok {
			s.Batman.Token = v
		}
	case FieldTrackID:
		if v, ok := f.Value.([]byte); ok {
			s.TrackID = v
		}
	case FieldExpiresAt:
		if v, ok := f.Value.(time.Time); ok {
			s.ExpiresAt = v
		}
	case FieldMaxExpiresAt:
		if v, ok := f.Value.(time.Time); ok {
			s.MaxExpiresAt = v
		}
	case FieldTouchExtension:
		if v, ok := f.Value.(time.Duration); ok {
			s.TouchExtension = v
		}
	}
}
