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

package authz

import (
	"context"
	"fmt"
	"sort"
)

// Resolver computes the authorization claims of a subject
type Resolver struct {
	roles RoleRepository
}

// NewResolver creates an authorization resolver
func NewResolver(roles RoleRepository) *Resolver {
	return &Resolver{roles: roles}
}

// Resolve builds the authz map for a subject over the given tenants.
// The result maps "*" to globally granted resources and each tenant to
// the union of that tenant's role grants. Resources listed in exclude
// are stripped everywhere; impersonated sessions use this to drop
// superuser and impersonation rights.
func (r *Resolver) Resolve(ctx context.Context, credentialsID string, tenants []string, exclude []string) (map[string][]string, error) {
	roles, err := r.roles.ListByCredentialsID(ctx, credentialsID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	excluded := make(map[string]bool, len(exclude))
	for _, res := range exclude {
		excluded[res] = true
	}

	sets := map[string]map[string]bool{"*": {}}
	for _, tenant := range tenants {
		sets[tenant] = map[string]bool{}
	}
	for _, role := range roles {
		set, ok := sets[role.Tenant]
		if !ok {
			// Role in a tenant outside the session scope
			continue
		}
		for _, res := range role.Resources {
			if !excluded[res] {
				set[res] = true
			}
		}
	}

	authz := make(map[string][]string, len(sets))
	for scope, set := range sets {
		resources := make([]string, 0, len(set))
		for res := range set {
			resources = append(resources, res)
		}
		sort.Strings(resources)
		authz[scope] = resources
	}
	return authz, nil
}

// HasResourceAccess checks whether the authz map grants all the given
// resources under a tenant. Superuser under "*" grants everything.
func HasResourceAccess(authz map[string][]string, tenant string, resources ...string) bool {
	if contains(authz["*"], ResourceSuperuser) {
		return true
	}
	granted := make(map[string]bool)
	for _, res := range authz["*"] {
		granted[res] = true
	}
	for _, res := range authz[tenant] {
		granted[res] = true
	}
	for _, res := range resources {
		if !granted[res] {
			return false
		}
	}
	return true
}

// CanAccessAllTenants reports whether the subject may enter tenants
// they are not assigned to
func CanAccessAllTenants(authz map[string][]string) bool {
	return contains(authz["*"], ResourceSuperuser) ||
		contains(authz["*"], ResourceTenantAccess)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
