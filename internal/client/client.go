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
	"errors"
	"time"
)

// Domain errors
var (
	ErrClientNotFound       = errors.New("client not found")
	ErrInvalidRedirectURI   = errors.New("invalid redirect URI")
	ErrInvalidResponseType  = errors.New("invalid response type")
	ErrInvalidGrantType     = errors.New("invalid grant type")
	ErrInvalidClientSecret  = errors.New("invalid client secret")
	ErrClientSecretRequired = errors.New("client secret required")
)

// Application types
const (
	ApplicationTypeWeb    = "web"
	ApplicationTypeNative = "native"
)

// Client is a registered OAuth2 relying party
type Client struct {
	ID              string
	SecretHash      []byte
	Name            string
	ApplicationType string
	RedirectURIs    []string
	ResponseTypes   []string
	GrantTypes      []string
	// SessionExpiration caps the lifetime of sessions issued to this
	// client; zero means the server default applies
	SessionExpiration time.Duration
	// AuthorizeURI optionally overrides where the client's users log in
	AuthorizeURI string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines the interface for client persistence
type Repository interface {
	// Get retrieves a client by ID
	Get(ctx context.Context, clientID string) (*Client, error)

	// Create registers a new client
	Create(ctx context.Context, client *Client) error

	// Update updates a client registration
	Update(ctx context.Context, client *Client) error

	// Delete removes a client registration
	Delete(ctx context.Context, clientID string) error

	// List lists all registered clients
	List(ctx context.Context) ([]*Client, error)
}
