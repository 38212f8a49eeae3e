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

package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrCredentialsExist    = errors.New("credentials already exist")
	ErrSuspended           = errors.New("credentials suspended")
	ErrUnknownProvider     = errors.New("unknown credentials provider")
)

// Record is the provider-independent view of a user's credentials.
// IDs are "<type>:<provider_id>:<local_id>" so every record names the
// provider that owns it.
type Record struct {
	ID        string
	Username  string
	Email     string
	Phone     string
	FullName  string
	Suspended bool

	CreatedAt  *time.Time
	ModifiedAt *time.Time
	Custom     map[string]any
}

// LoginDescriptor describes one way a user may log in and the factors
// that way requires. Clients pick a descriptor by ID when starting a
// login.
type LoginDescriptor struct {
	ID      string
	Label   string
	Factors []string
}

// Provider is one source of credentials, such as the built-in
// database or an external directory
type Provider interface {
	// Type names the provider implementation, e.g. "builtin" or "ldap"
	Type() string

	// ProviderID names this provider instance
	ProviderID() string

	// Get retrieves a record by its provider-local ID
	Get(ctx context.Context, localID string) (*Record, error)

	// Locate finds a record by username or email
	Locate(ctx context.Context, ident string) (*Record, error)

	// Count returns the number of records the provider holds
	Count(ctx context.Context) (int, error)

	// List pages through the provider's records
	List(ctx context.Context, offset, limit int) ([]*Record, error)

	// Search lists the records whose username, email or full name
	// matches the filter. An empty filter matches everything.
	Search(ctx context.Context, filter string) ([]*Record, error)

	// LoginDescriptors lists the login methods available for a
	// provider-local ID
	LoginDescriptors(ctx context.Context, localID string) ([]LoginDescriptor, error)

	// Authenticate verifies a password for a provider-local ID
	Authenticate(ctx context.Context, localID, password string) error
}

// FormatID builds a prefixed credentials ID
func FormatID(providerType, providerID, localID string) string {
	return providerType + ":" + providerID + ":" + localID
}

// SplitID splits a prefixed credentials ID into its three parts
func SplitID(id string) (providerType, providerID, localID string, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed credentials id %q", id)
	}
	return parts[0], parts[1], parts[2], nil
}
