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

package token_test

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/token"
)

// MockTokenRepo is an in-memory token.Repository keyed by type + hash
type MockTokenRepo struct {
	tokens map[string]*token.Token
}

func NewMockTokenRepo() *MockTokenRepo {
	return &MockTokenRepo{tokens: make(map[string]*token.Token)}
}

func key(typ token.Type, hash []byte) string {
	return string(typ) + ":" + string(hash)
}

func (m *MockTokenRepo) Create(ctx context.Context, t *token.Token) error {
	cp := *t
	m.tokens[key(t.Type, t.Hash)] = &cp
	return nil
}

func (m *MockTokenRepo) Get(ctx context.Context, typ token.Type, hash []byte) (*token.Token, error) {
	t, ok := m.tokens[key(typ, hash)]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTokenRepo) GetAndDelete(ctx context.Context, typ token.Type, hash []byte) (*token.Token, error) {
	k := key(typ, hash)
	t, ok := m.tokens[k]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	delete(m.tokens, k)
	return t, nil
}

func (m *MockTokenRepo) Delete(ctx context.Context, typ token.Type, hash []byte) error {
	k := key(typ, hash)
	if _, ok := m.tokens[k]; !ok {
		return token.ErrTokenNotFound
	}
	delete(m.tokens, k)
	return nil
}

func (m *MockTokenRepo) DeleteBySessionID(ctx context.Context, sessionID string) error {
	for k, t := range m.tokens {
		if t.SessionID == sessionID {
			delete(m.tokens, k)
		}
	}
	return nil
}

func (m *MockTokenRepo) DeleteExpired(ctx context.Context, limit int) (int, error) {
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

// TestPurpose: Verifies that only the SHA-256 hash of a token is persisted, never the raw value.
// Scope: Unit Test
// Security: Token-at-rest protection (a database leak reveals no usable tokens)
// Expected: The stored hash equals sha256(raw) and differs from the raw value.
func TestToken_Service_Create_StoresHashOnly(t *testing.T) {
	repo := NewMockTokenRepo()
	svc := token.NewService(repo)
	ctx := context.Background()

	raw, err := svc.Create(ctx, token.TypeAccessToken, "sess-1", 32, time.Hour, token.CreateOptions{})
	require.NoError(t, err)
	require.Len(t, raw, 32)

	expected := sha256.Sum256(raw)
	stored, ok := repo.tokens[key(token.TypeAccessToken, expected[:])]
	require.True(t, ok, "token must be stored under its SHA-256 hash")
	assert.Equal(t, expected[:], stored.Hash)
	assert.Equal(t, "sess-1", stored.SessionID)
}

// TestPurpose: Verifies that consecutive tokens are unique.
// Scope: Unit Test
// Security: Token unpredictability
// Expected: Two freshly minted tokens differ.
func TestToken_Service_Create_TokensAreUnique(t *testing.T) {
	svc := token.NewService(NewMockTokenRepo())
	ctx := context.Background()

	raw1, err := svc.Create(ctx, token.TypeAccessToken, "sess-1", 32, time.Hour, token.CreateOptions{})
	require.NoError(t, err)
	raw2, err := svc.Create(ctx, token.TypeAccessToken, "sess-1", 32, time.Hour, token.CreateOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, raw1, raw2)
}

// TestPurpose: Verifies that an authorization code can be consumed exactly once.
// Scope: Unit Test
// Security: Code replay prevention (RFC 6749 section 4.1.2)
// Expected: The first GetAndDelete succeeds, the second fails with ErrTokenNotFound.
func TestToken_Service_GetAndDelete_SingleUse(t *testing.T) {
	svc := token.NewService(NewMockTokenRepo())
	ctx := context.Background()

	raw, err := svc.Create(ctx, token.TypeAuthorizationCode, "sess-1", 32, time.Minute, token.CreateOptions{
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)

	first, err := svc.GetAndDelete(ctx, token.TypeAuthorizationCode, raw)
	require.NoError(t, err)
	assert.Equal(t, "challenge", first.CodeChallenge)
	assert.Equal(t, "S256", first.CodeChallengeMethod)

	_, err = svc.GetAndDelete(ctx, token.TypeAuthorizationCode, raw)
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
}

// TestPurpose: Verifies that expired tokens resolve as expired even while still stored.
// Scope: Unit Test
// Security: Token lifetime enforcement
// Expected: ErrTokenExpired for a token past its expiration.
func TestToken_Service_Get_ExpiredTokenRejected(t *testing.T) {
	svc := token.NewService(NewMockTokenRepo())
	ctx := context.Background()

	raw, err := svc.Create(ctx, token.TypeAccessToken, "sess-1", 32, -time.Minute, token.CreateOptions{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, token.TypeAccessToken, raw)
	assert.ErrorIs(t, err, token.ErrTokenExpired)
}

// TestPurpose: Verifies that token types partition the lookup space.
// Scope: Unit Test
// Security: Token confusion prevention (an access token is not a refresh token)
// Expected: A token stored as one type does not resolve as another.
func TestToken_Service_Get_TypeMismatchNotFound(t *testing.T) {
	svc := token.NewService(NewMockTokenRepo())
	ctx := context.Background()

	raw, err := svc.Create(ctx, token.TypeAccessToken, "sess-1", 32, time.Hour, token.CreateOptions{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, token.TypeRefreshToken, raw)
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
}

// TestPurpose: Verifies that deleting by session removes every token bound to that session and nothing else.
// Scope: Unit Test
// Security: Logout revokes all of a session's tokens
// Expected: Only the other session's token survives.
func TestToken_Service_DeleteBySessionID(t *testing.T) {
	repo := NewMockTokenRepo()
	svc := token.NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, token.TypeAccessToken, "sess-1", 32, time.Hour, token.CreateOptions{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, token.TypeRefreshToken, "sess-1", 32, time.Hour, token.CreateOptions{})
	require.NoError(t, err)
	other, err := svc.Create(ctx, token.TypeAccessToken, "sess-2", 32, time.Hour, token.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBySessionID(ctx, "sess-1"))

	assert.Len(t, repo.tokens, 1)
	_, err = svc.Get(ctx, token.TypeAccessToken, other)
	assert.NoError(t, err)
}
