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

package cookie

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// Domain errors
var (
	ErrNoCookie      = errors.New("session cookie not present")
	ErrUnknownDomain = errors.New("unknown cookie domain")
	ErrInvalidCookie = errors.New("invalid session cookie")
)

// RootDomainID identifies the authorization server's own cookie domain
const RootDomainID = "root"

// AppDomain is an additional cookie domain serving a hosted
// application behind the introspection proxy
type AppDomain struct {
	Domain      string
	RedirectURI string
}

// Config holds session cookie configuration
type Config struct {
	Name       string
	RootDomain string
	Secure     bool
	AppDomains map[string]AppDomain
}

// Service reads and writes session cookies. Cookie values are
// "<domain_id>:<base64(session cookie id)>" so one cookie name can
// serve several domains at once.
type Service struct {
	cfg Config
}

// NewService creates a cookie service
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// Name returns the configured cookie name
func (s *Service) Name() string {
	return s.cfg.Name
}

// Domain resolves a cookie domain ID to its application domain entry
func (s *Service) Domain(domainID string) (AppDomain, error) {
	if domainID == RootDomainID {
		return AppDomain{Domain: s.cfg.RootDomain}, nil
	}
	d, ok := s.cfg.AppDomains[domainID]
	if !ok {
		return AppDomain{}, ErrUnknownDomain
	}
	return d, nil
}

// Value encodes a session cookie id into the cookie value for a domain
func (s *Service) Value(domainID string, sci []byte) string {
	return domainID + ":" + base64.RawURLEncoding.EncodeToString(sci)
}

// SessionCookieID extracts the session cookie id from a request. The
// Cookie header is parsed by hand because several cookies can share
// our name, one per domain; net/http keeps only the first. The first
// occurrence carrying a known domain prefix and a decodable value
// wins.
func (s *Service) SessionCookieID(r *http.Request) (sci []byte, domainID string, err error) {
	for _, header := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(header, ";") {
			part = strings.TrimSpace(part)
			name, value, found := strings.Cut(part, "=")
			if !found || name != s.cfg.Name {
				continue
			}
			domain, encoded, found := strings.Cut(value, ":")
			if !found {
				continue
			}
			if _, err := s.Domain(domain); err != nil {
				continue
			}
			decoded, err := base64.RawURLEncoding.DecodeString(encoded)
			if err != nil || len(decoded) == 0 {
				continue
			}
			return decoded, domain, nil
		}
	}
	return nil, "", ErrNoCookie
}

// SetCookie writes the session cookie for a domain
func (s *Service) SetCookie(w http.ResponseWriter, domainID string, sci []byte) error {
	d, err := s.Domain(domainID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Name,
		Value:    s.Value(domainID, sci),
		Domain:   d.Domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// DeleteCookie instructs the browser to drop the session cookie for a
// domain
func (s *Service) DeleteCookie(w http.ResponseWriter, domainID string) {
	d, err := s.Domain(domainID)
	if err != nil {
		d = AppDomain{Domain: s.cfg.RootDomain}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Name,
		Value:    "",
		Domain:   d.Domain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
