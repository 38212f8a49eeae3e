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
	"log/slog"
)

// Service is a façade over the registered credentials providers,
// dispatching on the provider prefix of a credentials ID
type Service struct {
	providers map[string]Provider
	order     []string
}

// NewService creates a credentials service
func NewService() *Service {
	return &Service{providers: make(map[string]Provider)}
}

// Register adds a provider. Registration order decides Locate
// precedence.
func (s *Service) Register(p Provider) {
	key := p.Type() + ":" + p.ProviderID()
	if _, exists := s.providers[key]; exists {
		slog.Warn("credentials provider registered twice", slog.String("provider", key))
		return
	}
	s.providers[key] = p
	s.order = append(s.order, key)
}

// Get retrieves a record by its prefixed credentials ID
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	p, localID, err := s.provider(id)
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, localID)
}

// Locate finds a record by username or email, asking providers in
// registration order
func (s *Service) Locate(ctx context.Context, ident string) (*Record, error) {
	for _, key := range s.order {
		rec, err := s.providers[key].Locate(ctx, ident)
		if err == ErrCredentialsNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, ErrCredentialsNotFound
}

// Authenticate verifies a password against the provider that owns the
// credentials ID. Suspended records never authenticate.
func (s *Service) Authenticate(ctx context.Context, id, password string) error {
	p, localID, err := s.provider(id)
	if err != nil {
		return err
	}
	rec, err := p.Get(ctx, localID)
	if err != nil {
		return err
	}
	if rec.Suspended {
		return ErrSuspended
	}
	return p.Authenticate(ctx, localID, password)
}

// Count sums record counts across all providers
func (s *Service) Count(ctx context.Context) (int, error) {
	total := 0
	for _, key := range s.order {
		n, err := s.providers[key].Count(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Search collects the matching records of every provider, in
// registration order. An empty filter matches everything.
func (s *Service) Search(ctx context.Context, filter string) ([]*Record, error) {
	var out []*Record
	for _, key := range s.order {
		recs, err := s.providers[key].Search(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Iterate pages through the merged provider records: the offset and
// limit span providers, so a page may start in one provider and end in
// the next
func (s *Service) Iterate(ctx context.Context, offset, limit int, filter string) ([]*Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []*Record
	for _, key := range s.order {
		recs, err := s.providers[key].Search(ctx, filter)
		if err != nil {
			return nil, err
		}
		if offset >= len(recs) {
			offset -= len(recs)
			continue
		}
		for _, rec := range recs[offset:] {
			out = append(out, rec)
			if len(out) == limit {
				return out, nil
			}
		}
		offset = 0
	}
	return out, nil
}

// LoginDescriptors lists the login methods of the provider that owns
// the credentials ID
func (s *Service) LoginDescriptors(ctx context.Context, id string) ([]LoginDescriptor, error) {
	p, localID, err := s.provider(id)
	if err != nil {
		return nil, err
	}
	return p.LoginDescriptors(ctx, localID)
}

func (s *Service) provider(id string) (Provider, string, error) {
	providerType, providerID, localID, err := SplitID(id)
	if err != nil {
		return nil, "", ErrCredentialsNotFound
	}
	p, ok := s.providers[providerType+":"+providerID]
	if !ok {
		return nil, "", ErrUnknownProvider
	}
	return p, localID, nil
}
