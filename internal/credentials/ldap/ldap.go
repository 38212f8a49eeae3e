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

// Package ldap is the external directory credentials provider.
package ldap

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/gatehouse/gatehouse/internal/credentials"
)

// ProviderType is the type prefix of LDAP credentials IDs
const ProviderType = "ldap"

// userAccountControl bit marking a disabled account
const accountDisabled = 0x2

// ldapTimeLayout is the LDAP generalized time format
const ldapTimeLayout = "20060102150405Z"

// Config holds LDAP provider configuration
type Config struct {
	ProviderID   string
	URI          string
	BindDN       string
	BindPassword string
	BaseDN       string
	Filter       string
	AttrUsername string
	PoolSize     int
	Timeout      time.Duration
}

// Provider serves credentials from an external LDAP directory. Each
// operation uses a fresh connection with its own bind; the semaphore
// bounds how many run at once. Directory entries are identified by
// their DN, carried base64-encoded in the credentials ID.
type Provider struct {
	cfg Config
	sem chan struct{}
}

// NewProvider creates an LDAP credentials provider
func NewProvider(cfg Config) *Provider {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.AttrUsername == "" {
		cfg.AttrUsername = "sAMAccountName"
	}
	return &Provider{
		cfg: cfg,
		sem: make(chan struct{}, cfg.PoolSize),
	}
}

func (p *Provider) Type() string       { return ProviderType }
func (p *Provider) ProviderID() string { return p.cfg.ProviderID }

// Get retrieves a record by its provider-local ID, the base64 of the
// entry DN
func (p *Provider) Get(ctx context.Context, localID string) (*credentials.Record, error) {
	dn, err := decodeDN(localID)
	if err != nil {
		return nil, credentials.ErrCredentialsNotFound
	}
	var rec *credentials.Record
	err = p.withConn(ctx, func(conn *goldap.Conn) error {
		entry, err := p.searchOne(conn, dn, goldap.ScopeBaseObject, p.cfg.Filter)
		if err != nil {
			return err
		}
		rec = p.normalize(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Locate finds a record by username or email
func (p *Provider) Locate(ctx context.Context, ident string) (*credentials.Record, error) {
	escaped := goldap.EscapeFilter(ident)
	filter := fmt.Sprintf("(&%s(|(%s=%s)(mail=%s)))",
		p.cfg.Filter, p.cfg.AttrUsername, escaped, escaped)

	var rec *credentials.Record
	err := p.withConn(ctx, func(conn *goldap.Conn) error {
		entry, err := p.searchOne(conn, p.cfg.BaseDN, goldap.ScopeWholeSubtree, filter)
		if err != nil {
			return err
		}
		rec = p.normalize(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Count returns the number of entries matching the provider filter
func (p *Provider) Count(ctx context.Context) (int, error) {
	count := 0
	err := p.withConn(ctx, func(conn *goldap.Conn) error {
		req := goldap.NewSearchRequest(
			p.cfg.BaseDN, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
			0, 0, false, p.cfg.Filter, []string{"dn"}, nil,
		)
		res, err := conn.SearchWithPaging(req, 1000)
		if err != nil {
			return fmt.Errorf("ldap search failed: %w", err)
		}
		count = len(res.Entries)
		return nil
	})
	return count, err
}

// List pages through directory entries as records
func (p *Provider) List(ctx context.Context, offset, limit int) ([]*credentials.Record, error) {
	var records []*credentials.Record
	err := p.withConn(ctx, func(conn *goldap.Conn) error {
		req := goldap.NewSearchRequest(
			p.cfg.BaseDN, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
			0, 0, false, p.cfg.Filter, p.attributes(), nil,
		)
		res, err := conn.SearchWithPaging(req, 1000)
		if err != nil {
			return fmt.Errorf("ldap search failed: %w", err)
		}
		for i := offset; i < len(res.Entries) && (limit <= 0 || i < offset+limit); i++ {
			records = append(records, p.normalize(res.Entries[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Search lists directory entries whose username, mail or common name
// contains the filter. An empty filter lists every entry matching the
// provider filter.
func (p *Provider) Search(ctx context.Context, filter string) ([]*credentials.Record, error) {
	ldapFilter := p.cfg.Filter
	if filter != "" {
		escaped := goldap.EscapeFilter(filter)
		ldapFilter = fmt.Sprintf("(&%s(|(%s=*%s*)(mail=*%s*)(cn=*%s*)))",
			p.cfg.Filter, p.cfg.AttrUsername, escaped, escaped, escaped)
	}

	var records []*credentials.Record
	err := p.withConn(ctx, func(conn *goldap.Conn) error {
		req := goldap.NewSearchRequest(
			p.cfg.BaseDN, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
			0, 0, false, ldapFilter, p.attributes(), nil,
		)
		res, err := conn.SearchWithPaging(req, 1000)
		if err != nil {
			return fmt.Errorf("ldap search failed: %w", err)
		}
		for _, entry := range res.Entries {
			records = append(records, p.normalize(entry))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LoginDescriptors lists the login methods of a directory entry.
// Directory accounts authenticate with their bind password.
func (p *Provider) LoginDescriptors(ctx context.Context, localID string) ([]credentials.LoginDescriptor, error) {
	if _, err := decodeDN(localID); err != nil {
		return nil, credentials.ErrCredentialsNotFound
	}
	return []credentials.LoginDescriptor{{
		ID:      "default",
		Label:   "Directory login",
		Factors: []string{"password"},
	}}, nil
}

// Authenticate verifies a password by binding as the entry DN
func (p *Provider) Authenticate(ctx context.Context, localID, password string) error {
	dn, err := decodeDN(localID)
	if err != nil {
		return credentials.ErrInvalidCredentials
	}
	if password == "" {
		// An empty password would trigger an unauthenticated bind
		return credentials.ErrInvalidCredentials
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	conn, err := goldap.DialURL(p.cfg.URI)
	if err != nil {
		return fmt.Errorf("ldap connection failed: %w", err)
	}
	defer conn.Close()
	conn.SetTimeout(p.cfg.Timeout)

	if err := conn.Bind(dn, password); err != nil {
		return credentials.ErrInvalidCredentials
	}
	return nil
}

// withConn runs fn on a fresh, service-bound connection. The
// connection is always unbound and closed, success or failure.
func (p *Provider) withConn(ctx context.Context, fn func(conn *goldap.Conn) error) error {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	conn, err := goldap.DialURL(p.cfg.URI)
	if err != nil {
		return fmt.Errorf("ldap connection failed: %w", err)
	}
	defer conn.Close()
	conn.SetTimeout(p.cfg.Timeout)

	if p.cfg.BindDN != "" {
		if err := conn.Bind(p.cfg.BindDN, p.cfg.BindPassword); err != nil {
			return fmt.Errorf("ldap bind failed: %w", err)
		}
	}
	return fn(conn)
}

func (p *Provider) searchOne(conn *goldap.Conn, baseDN string, scope int, filter string) (*goldap.Entry, error) {
	req := goldap.NewSearchRequest(
		baseDN, scope, goldap.NeverDerefAliases,
		2, 0, false, filter, p.attributes(), nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
			return nil, credentials.ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("ldap search failed: %w", err)
	}
	if len(res.Entries) == 0 {
		return nil, credentials.ErrCredentialsNotFound
	}
	return res.Entries[0], nil
}

func (p *Provider) attributes() []string {
	return []string{
		p.cfg.AttrUsername,
		"cn", "mail", "mobile",
		"userAccountControl",
		"createTimestamp", "modifyTimestamp",
	}
}

// normalize maps a directory entry onto the provider-independent
// record shape
func (p *Provider) normalize(entry *goldap.Entry) *credentials.Record {
	rec := &credentials.Record{
		ID:       credentials.FormatID(ProviderType, p.cfg.ProviderID, encodeDN(entry.DN)),
		Username: entry.GetAttributeValue(p.cfg.AttrUsername),
		FullName: entry.GetAttributeValue("cn"),
		Email:    entry.GetAttributeValue("mail"),
		Phone:    entry.GetAttributeValue("mobile"),
	}
	if uac := entry.GetAttributeValue("userAccountControl"); uac != "" {
		if v, err := strconv.Atoi(uac); err == nil {
			rec.Suspended = v&accountDisabled != 0
		}
	}
	if v := entry.GetAttributeValue("createTimestamp"); v != "" {
		if t, err := time.Parse(ldapTimeLayout, v); err == nil {
			rec.CreatedAt = &t
		}
	}
	if v := entry.GetAttributeValue("modifyTimestamp"); v != "" {
		if t, err := time.Parse(ldapTimeLayout, v); err == nil {
			rec.ModifiedAt = &t
		}
	}
	return rec
}

func encodeDN(dn string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(dn))
}

func decodeDN(localID string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(localID)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
