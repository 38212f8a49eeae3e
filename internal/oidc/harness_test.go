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

package oidc_test

import (
	"context"
	"crypto/sha256"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/authz"
	"github.com/gatehouse/gatehouse/internal/client"
	"github.com/gatehouse/gatehouse/internal/credentials"
	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/otp"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/tenant"
	"github.com/gatehouse/gatehouse/internal/token"
)

// In-memory repositories backing the full service graph. Tests wire
// the real services against these so flows run end to end without a
// database.

type mockSessionRepo struct {
	sessions map[string]*session.Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*session.Session)}
}

func (m *mockSessionRepo) Create(ctx context.Context, sess *session.Session) error {
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *mockSessionRepo) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *mockSessionRepo) Update(ctx context.Context, sess *session.Session, expectedModifiedAt time.Time) error {
	stored, ok := m.sessions[sess.ID]
	if !ok {
		return session.ErrSessionNotFound
	}
	if !stored.ModifiedAt.Equal(expectedModifiedAt) {
		return session.ErrConcurrentUpdate
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, sessionID string) error {
	if _, ok := m.sessions[sessionID]; !ok {
		return session.ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *mockSessionRepo) ListChildren(ctx context.Context, parentID string) ([]*session.Session, error) {
	var out []*session.Session
	for _, sess := range m.sessions {
		if sess.ParentID == parentID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) ListByCredentialsID(ctx context.Context, credentialsID string) ([]*session.Session, error) {
	var out []*session.Session
	for _, sess := range m.sessions {
		if sess.Credentials.ID == credentialsID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, limit int) (int, error) {
	deleted := 0
	for id, sess := range m.sessions {
		if deleted >= limit {
			break
		}
		if sess.IsExpired() {
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

type mockTokenRepo struct {
	tokens map[string]*token.Token
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{tokens: make(map[string]*token.Token)}
}

func tokenKey(typ token.Type, hash []byte) string {
	return string(typ) + ":" + string(hash)
}

func (m *mockTokenRepo) Create(ctx context.Context, t *token.Token) error {
	cp := *t
	m.tokens[tokenKey(t.Type, t.Hash)] = &cp
	return nil
}

func (m *mockTokenRepo) Get(ctx context.Context, typ token.Type, hash []byte) (*token.Token, error) {
	t, ok := m.tokens[tokenKey(typ, hash)]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTokenRepo) GetAndDelete(ctx context.Context, typ token.Type, hash []byte) (*token.Token, error) {
	k := tokenKey(typ, hash)
	t, ok := m.tokens[k]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	delete(m.tokens, k)
	return t, nil
}

func (m *mockTokenRepo) Delete(ctx context.Context, typ token.Type, hash []byte) error {
	k := tokenKey(typ, hash)
	if _, ok := m.tokens[k]; !ok {
		return token.ErrTokenNotFound
	}
	delete(m.tokens, k)
	return nil
}

func (m *mockTokenRepo) DeleteBySessionID(ctx context.Context, sessionID string) error {
	for k, t := range m.tokens {
		if t.SessionID == sessionID {
			delete(m.tokens, k)
		}
	}
	return nil
}

func (m *mockTokenRepo) DeleteExpired(ctx context.Context, limit int) (int, error) {
	deleted := 0
	for k, t := range m.tokens {
		if deleted >= limit {
			break
		}
		if t.IsExpired() {
			delete(m.tokens, k)
			deleted++
		}
	}
	return deleted, nil
}

type mockClientRepo struct {
	clients map[string]*client.Client
}

func newMockClientRepo() *mockClientRepo {
	return &mockClientRepo{clients: make(map[string]*client.Client)}
}

func (m *mockClientRepo) Get(ctx context.Context, clientID string) (*client.Client, error) {
	c, ok := m.clients[clientID]
	if !ok {
		return nil, client.ErrClientNotFound
	}
	return c, nil
}

func (m *mockClientRepo) Create(ctx context.Context, c *client.Client) error {
	m.clients[c.ID] = c
	return nil
}

func (m *mockClientRepo) Update(ctx context.Context, c *client.Client) error {
	m.clients[c.ID] = c
	return nil
}

func (m *mockClientRepo) Delete(ctx context.Context, clientID string) error {
	delete(m.clients, clientID)
	return nil
}

func (m *mockClientRepo) List(ctx context.Context) ([]*client.Client, error) {
	var out []*client.Client
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, nil
}

type mockTenantRepo struct {
	tenants     map[string]*tenant.Tenant
	assignments map[string][]string
}

func newMockTenantRepo() *mockTenantRepo {
	return &mockTenantRepo{
		tenants:     make(map[string]*tenant.Tenant),
		assignments: make(map[string][]string),
	}
}

func (m *mockTenantRepo) Get(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (m *mockTenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	m.tenants[t.ID] = t
	return nil
}

func (m *mockTenantRepo) Delete(ctx context.Context, tenantID string) error {
	delete(m.tenants, tenantID)
	return nil
}

func (m *mockTenantRepo) List(ctx context.Context) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockTenantRepo) ListByCredentialsID(ctx context.Context, credentialsID string) ([]string, error) {
	return m.assignments[credentialsID], nil
}

func (m *mockTenantRepo) AssignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	m.assignments[credentialsID] = append(m.assignments[credentialsID], tenantID)
	return nil
}

func (m *mockTenantRepo) UnassignCredentials(ctx context.Context, tenantID, credentialsID string) error {
	var kept []string
	for _, t := range m.assignments[credentialsID] {
		if t != tenantID {
			kept = append(kept, t)
		}
	}
	m.assignments[credentialsID] = kept
	return nil
}

type mockRoleRepo struct {
	roles       map[string]*authz.Role
	assignments map[string][]string
}

func newMockRoleRepo() *mockRoleRepo {
	return &mockRoleRepo{
		roles:       make(map[string]*authz.Role),
		assignments: make(map[string][]string),
	}
}

func (m *mockRoleRepo) Get(ctx context.Context, roleID string) (*authz.Role, error) {
	r, ok := m.roles[roleID]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	return r, nil
}

func (m *mockRoleRepo) ListByCredentialsID(ctx context.Context, credentialsID string) ([]*authz.Role, error) {
	var out []*authz.Role
	for _, roleID := range m.assignments[credentialsID] {
		if r, ok := m.roles[roleID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRoleRepo) Assign(ctx context.Context, credentialsID, roleID string) error {
	m.assignments[credentialsID] = append(m.assignments[credentialsID], roleID)
	return nil
}

func (m *mockRoleRepo) Unassign(ctx context.Context, credentialsID, roleID string) error {
	var kept []string
	for _, r := range m.assignments[credentialsID] {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	m.assignments[credentialsID] = kept
	return nil
}

type mockOTPRepo struct {
	secrets map[string]*otp.Secret
}

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{secrets: make(map[string]*otp.Secret)}
}

func (m *mockOTPRepo) Get(ctx context.Context, credentialsID string) (*otp.Secret, error) {
	s, ok := m.secrets[credentialsID]
	if !ok {
		return nil, otp.ErrTOTPNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockOTPRepo) Upsert(ctx context.Context, secret *otp.Secret) error {
	cp := *secret
	m.secrets[secret.CredentialsID] = &cp
	return nil
}

func (m *mockOTPRepo) Delete(ctx context.Context, credentialsID string) error {
	delete(m.secrets, credentialsID)
	return nil
}

type mockKeyRepo struct {
	keys []*oidc.Key
}

func (m *mockKeyRepo) Create(ctx context.Context, key *oidc.Key) error {
	m.keys = append(m.keys, key)
	return nil
}

func (m *mockKeyRepo) GetActiveKey(ctx context.Context) (*oidc.Key, error) {
	var newest *oidc.Key
	for _, key := range m.keys {
		if key.ExpiresAt.Before(time.Now()) {
			continue
		}
		if newest == nil || key.CreatedAt.After(newest.CreatedAt) {
			newest = key
		}
	}
	if newest == nil {
		return nil, oidc.ErrKeyNotFound
	}
	return newest, nil
}

func (m *mockKeyRepo) ListValidKeys(ctx context.Context) ([]*oidc.Key, error) {
	var out []*oidc.Key
	for _, key := range m.keys {
		if key.ExpiresAt.After(time.Now()) {
			out = append(out, key)
		}
	}
	return out, nil
}

type mockAuditLogger struct {
	events []audit.Event
}

func (m *mockAuditLogger) Log(ctx context.Context, event audit.Event) {
	m.events = append(m.events, event)
}

func (m *mockAuditLogger) hasType(eventType string) bool {
	for _, e := range m.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// mockLastTenants serves the bare "tenant" scope fallback
type mockLastTenants struct {
	byCredentialsID map[string][]string
}

func (m *mockLastTenants) LastAuthorizedTenants(ctx context.Context, credentialsID string) ([]string, error) {
	return m.byCredentialsID[credentialsID], nil
}

// mockProvider is an in-memory credentials provider with fixed
// passwords
type mockProvider struct {
	records   map[string]*credentials.Record
	passwords map[string]string
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		records:   make(map[string]*credentials.Record),
		passwords: make(map[string]string),
	}
}

func (m *mockProvider) Type() string       { return "mock" }
func (m *mockProvider) ProviderID() string { return "test" }

func (m *mockProvider) add(localID, username, password string) string {
	id := credentials.FormatID(m.Type(), m.ProviderID(), localID)
	m.records[localID] = &credentials.Record{
		ID:       id,
		Username: username,
		Email:    username + "@example.com",
	}
	m.passwords[localID] = password
	return id
}

func (m *mockProvider) Get(ctx context.Context, localID string) (*credentials.Record, error) {
	rec, ok := m.records[localID]
	if !ok {
		return nil, credentials.ErrCredentialsNotFound
	}
	return rec, nil
}

func (m *mockProvider) Locate(ctx context.Context, ident string) (*credentials.Record, error) {
	for _, rec := range m.records {
		if rec.Username == ident || rec.Email == ident {
			return rec, nil
		}
	}
	return nil, credentials.ErrCredentialsNotFound
}

func (m *mockProvider) Count(ctx context.Context) (int, error) {
	return len(m.records), nil
}

func (m *mockProvider) List(ctx context.Context, offset, limit int) ([]*credentials.Record, error) {
	var out []*credentials.Record
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockProvider) Search(ctx context.Context, filter string) ([]*credentials.Record, error) {
	var out []*credentials.Record
	for _, rec := range m.records {
		if filter == "" || strings.Contains(rec.Username, filter) || strings.Contains(rec.Email, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockProvider) LoginDescriptors(ctx context.Context, localID string) ([]credentials.LoginDescriptor, error) {
	if _, ok := m.records[localID]; !ok {
		return nil, credentials.ErrCredentialsNotFound
	}
	return []credentials.LoginDescriptor{{
		ID:      "default",
		Label:   "Password login",
		Factors: []string{"password"},
	}}, nil
}

func (m *mockProvider) Authenticate(ctx context.Context, localID, password string) error {
	stored, ok := m.passwords[localID]
	if !ok || stored != password {
		return credentials.ErrInvalidCredentials
	}
	return nil
}

// harness wires the real service graph over in-memory repositories
type harness struct {
	svc      *oidc.Service
	sessions *session.Service
	tokens   *token.Service
	signer   *oidc.Signer
	otp      *otp.Service

	sessionRepo *mockSessionRepo
	tokenRepo   *mockTokenRepo
	clientRepo  *mockClientRepo
	tenantRepo  *mockTenantRepo
	roleRepo    *mockRoleRepo
	otpRepo     *mockOTPRepo
	provider    *mockProvider
	auditLog    *mockAuditLogger
	lastTenants *mockLastTenants
}

func newHarness(t *testing.T, cfgEdit func(*oidc.Config)) *harness {
	t.Helper()

	h := &harness{
		sessionRepo: newMockSessionRepo(),
		tokenRepo:   newMockTokenRepo(),
		clientRepo:  newMockClientRepo(),
		tenantRepo:  newMockTenantRepo(),
		roleRepo:    newMockRoleRepo(),
		otpRepo:     newMockOTPRepo(),
		provider:    newMockProvider(),
		auditLog:    &mockAuditLogger{},
		lastTenants: &mockLastTenants{byCredentialsID: make(map[string][]string)},
	}

	encryptionKey := []byte("0123456789abcdef0123456789abcdef")

	h.tokens = token.NewService(h.tokenRepo)
	h.sessions = session.NewService(h.sessionRepo, h.tokens, session.Config{
		Expiration:          4 * time.Hour,
		TouchExtension:      time.Hour,
		MaximumAge:          30 * 24 * time.Hour,
		AnonymousExpiration: time.Hour,
		AlgorithmicKey:      encryptionKey,
	})

	creds := credentials.NewService()
	creds.Register(h.provider)

	tenants := tenant.NewService(h.tenantRepo, h.lastTenants)
	resolver := authz.NewResolver(h.roleRepo)
	h.otp = otp.NewService(h.otpRepo, "gatehouse-test")
	clients := client.NewService(h.clientRepo, false)

	h.signer = oidc.NewSigner(&mockKeyRepo{}, encryptionKey)
	require.NoError(t, h.signer.Init(context.Background()))

	cfg := oidc.Config{
		Issuer:                      "https://auth.test.example.com",
		AuthorizationCodeLength:     32,
		AuthorizationCodeExpiration: time.Minute,
		AccessTokenLength:           32,
		AccessTokenExpiration:       time.Hour,
		RefreshTokenLength:          32,
		RefreshTokenExpiration:      24 * time.Hour,
	}
	if cfgEdit != nil {
		cfgEdit(&cfg)
	}

	h.svc = oidc.NewService(cfg, h.sessions, h.tokens, clients, tenants,
		creds, resolver, h.otp, h.signer, h.auditLog)
	return h
}

// addClient registers a confidential client with one redirect URI
func (h *harness) addClient(t *testing.T, clientID, secret string) *client.Client {
	t.Helper()
	secretHash := sha256.Sum256([]byte(secret))
	c := &client.Client{
		ID:              clientID,
		SecretHash:      secretHash[:],
		Name:            "Test Application",
		ApplicationType: client.ApplicationTypeWeb,
		RedirectURIs:    []string{"https://app.example.com/callback"},
		ResponseTypes:   []string{"code"},
		GrantTypes:      []string{"authorization_code", "refresh_token"},
	}
	require.NoError(t, h.clientRepo.Create(context.Background(), c))
	return c
}

// addUser registers a user with a tenant assignment and a role
func (h *harness) addUser(t *testing.T, username, password, tenantID string, resources ...string) string {
	t.Helper()
	ctx := context.Background()
	cid := h.provider.add(username, username, password)

	if tenantID != "" {
		require.NoError(t, h.tenantRepo.Create(ctx, &tenant.Tenant{ID: tenantID}))
		require.NoError(t, h.tenantRepo.AssignCredentials(ctx, tenantID, cid))
	}
	if len(resources) > 0 {
		roleID := "role-" + username
		h.roleRepo.roles[roleID] = &authz.Role{
			ID:        roleID,
			Tenant:    tenantID,
			Name:      "tester",
			Resources: resources,
		}
		require.NoError(t, h.roleRepo.Assign(ctx, cid, roleID))
	}
	return cid
}

// login establishes a root session for a user created with addUser
func (h *harness) login(t *testing.T, username, password string) *session.Session {
	t.Helper()
	root, sci, err := h.svc.Login(context.Background(), username, password, "")
	require.NoError(t, err)
	require.NotEmpty(t, sci)
	return root
}

// authorizeRequest builds a valid authorize request for the test client
func authorizeRequest(clientID string, scope ...string) *oidc.AuthorizeRequest {
	if len(scope) == 0 {
		scope = []string{"openid", "tenant:*"}
	}
	return &oidc.AuthorizeRequest{
		ResponseType: oidc.ResponseTypeCode,
		ClientID:     clientID,
		RedirectURI:  "https://app.example.com/callback",
		Scope:        scope,
		State:        "xyz",
		Nonce:        "n-0S6_WzA2Mj",
	}
}
