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

package oidc

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningAlgorithm is the only ID token algorithm the server issues
const SigningAlgorithm = "ES256"

// defaultKeyLifetime is how long a signing key stays publishable
const defaultKeyLifetime = 90 * 24 * time.Hour

// Signer issues and verifies ES256 ID tokens. Keys are generated on
// demand, persisted with the private half encrypted, and published
// through JWKS until they expire so tokens signed before a rotation
// keep verifying.
type Signer struct {
	repo          KeyRepository
	encryptionKey []byte
	keyLifetime   time.Duration

	mu       sync.RWMutex
	activeID string
	active   *ecdsa.PrivateKey
}

// NewSigner creates an ID token signer
func NewSigner(repo KeyRepository, encryptionKey []byte) *Signer {
	return &Signer{
		repo:          repo,
		encryptionKey: encryptionKey,
		keyLifetime:   defaultKeyLifetime,
	}
}

// Init loads the active signing key, generating and persisting one if
// none exists yet
func (s *Signer) Init(ctx context.Context) error {
	key, err := s.repo.GetActiveKey(ctx)
	if err == ErrKeyNotFound {
		return s.Rotate(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	private, err := s.decryptPrivateKey(key.PrivateKeyEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt signing key %s: %w", key.ID, err)
	}
	s.mu.Lock()
	s.activeID, s.active = key.ID, private
	s.mu.Unlock()
	return nil
}

// Rotate generates a fresh P-256 key, persists it encrypted, and makes
// it the active signer. Previous keys stay valid for verification
// until their stored expiry.
func (s *Signer) Rotate(ctx context.Context) error {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(private)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	encrypted, err := s.encrypt(der)
	if err != nil {
		return fmt.Errorf("failed to encrypt private key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	now := time.Now().UTC()
	key := &Key{
		ID:                  uuid.New().String(),
		Algorithm:           SigningAlgorithm,
		PublicKeyPEM:        string(publicPEM),
		PrivateKeyEncrypted: encrypted,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.keyLifetime),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return fmt.Errorf("failed to store signing key: %w", err)
	}

	s.mu.Lock()
	s.activeID, s.active = key.ID, private
	s.mu.Unlock()
	return nil
}

// SignIDToken signs claims into an ES256 JWT carrying the active kid
func (s *Signer) SignIDToken(claims jwt.MapClaims) (string, error) {
	s.mu.RLock()
	keyID, private := s.activeID, s.active
	s.mu.RUnlock()
	if private == nil {
		return "", ErrKeyNotFound
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(private)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an ID token against the stored valid
// keys, selected by kid
func (s *Signer) Verify(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	keys, err := s.repo.ListValidKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list signing keys: %w", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		for _, key := range keys {
			if key.ID == kid {
				return parsePublicKeyPEM(key.PublicKeyPEM)
			}
		}
		return nil, fmt.Errorf("unknown kid %q", kid)
	}, jwt.WithValidMethods([]string{SigningAlgorithm}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// JWK is one JSON Web Key in the published key set
type JWK struct {
	KeyType   string `json:"kty"`
	Curve     string `json:"crv"`
	X         string `json:"x"`
	Y         string `json:"y"`
	KeyID     string `json:"kid"`
	Use       string `json:"use"`
	Algorithm string `json:"alg"`
}

// JWKS lists the public halves of all still-valid signing keys
func (s *Signer) JWKS(ctx context.Context) ([]JWK, error) {
	keys, err := s.repo.ListValidKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list signing keys: %w", err)
	}

	jwks := make([]JWK, 0, len(keys))
	for _, key := range keys {
		public, err := parsePublicKeyPEM(key.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key %s: %w", key.ID, err)
		}
		byteLen := (public.Curve.Params().BitSize + 7) / 8
		jwks = append(jwks, JWK{
			KeyType:   "EC",
			Curve:     "P-256",
			X:         base64.RawURLEncoding.EncodeToString(public.X.FillBytes(make([]byte, byteLen))),
			Y:         base64.RawURLEncoding.EncodeToString(public.Y.FillBytes(make([]byte, byteLen))),
			KeyID:     key.ID,
			Use:       "sig",
			Algorithm: key.Algorithm,
		})
	}
	return jwks, nil
}

func (s *Signer) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Signer) decryptPrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	der, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return nil, err
	}
	return x509.ParseECPrivateKey(der)
}

func parsePublicKeyPEM(pemData string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	public, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ec, ok := public.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an EC public key")
	}
	return ec, nil
}
