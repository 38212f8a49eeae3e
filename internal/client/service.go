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

package client

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
)

// Service validates client registrations against authorization
// requests
type Service struct {
	repo Repository
	// devDisableRedirectURIValidation skips exact redirect_uri
	// matching. Local development only.
	devDisableRedirectURIValidation bool
}

// NewService creates a client service
func NewService(repo Repository, devDisableRedirectURIValidation bool) *Service {
	if devDisableRedirectURIValidation {
		slog.Warn("redirect URI validation is disabled, do not run this in production")
	}
	return &Service{
		repo:                            repo,
		devDisableRedirectURIValidation: devDisableRedirectURIValidation,
	}
}

// Get retrieves a client by ID
func (s *Service) Get(ctx context.Context, clientID string) (*Client, error) {
	return s.repo.Get(ctx, clientID)
}

// Authorize loads a client and checks that the given redirect URI and
// response type are registered for it
func (s *Service) Authorize(ctx context.Context, clientID, redirectURI, responseType string) (*Client, error) {
	c, err := s.repo.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateRedirectURI(c, redirectURI); err != nil {
		return nil, err
	}
	if responseType != "" && !contains(c.ResponseTypes, responseType) {
		return nil, ErrInvalidResponseType
	}
	return c, nil
}

// ValidateRedirectURI checks the redirect URI against the client's
// registered URIs, requiring an exact string match
func (s *Service) ValidateRedirectURI(c *Client, redirectURI string) error {
	if s.devDisableRedirectURIValidation {
		return nil
	}
	if !contains(c.RedirectURIs, redirectURI) {
		return ErrInvalidRedirectURI
	}
	return nil
}

// Authenticate verifies a confidential client's secret. Public clients
// have no stored secret and pass with an empty one.
func (s *Service) Authenticate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	c, err := s.repo.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(c.SecretHash) == 0 {
		if clientSecret != "" {
			return nil, ErrInvalidClientSecret
		}
		return c, nil
	}
	if clientSecret == "" {
		return nil, ErrClientSecretRequired
	}
	hash := sha256.Sum256([]byte(clientSecret))
	if subtle.ConstantTimeCompare(hash[:], c.SecretHash) != 1 {
		return nil, ErrInvalidClientSecret
	}
	return c, nil
}

// ValidateGrantType checks that the client may use a grant type
func (s *Service) ValidateGrantType(c *Client, grantType string) error {
	if !contains(c.GrantTypes, grantType) {
		return ErrInvalidGrantType
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
