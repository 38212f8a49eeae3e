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

package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	OIDC          OIDCConfig
	Session       SessionConfig
	Cookie        CookieConfig
	Credentials   CredentialsConfig
	LDAP          LDAPConfig
	Registration  RegistrationConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OIDCConfig holds OpenID Connect provider configuration
type OIDCConfig struct {
	// Issuer is the value of the "iss" claim and the base of discovery URLs
	Issuer string
	// PublicAPIBaseURL is the externally visible base URL of the public API
	PublicAPIBaseURL string
	// AuthWebUIBaseURL is where unauthenticated users are sent to log in
	AuthWebUIBaseURL string

	AuthorizationCodeLength     int
	AuthorizationCodeExpiration time.Duration
	AccessTokenLength           int
	AccessTokenExpiration       time.Duration
	RefreshTokenLength          int
	RefreshTokenExpiration      time.Duration

	// KeyEncryptionKey encrypts signing key material at rest (32 bytes, hex)
	KeyEncryptionKey []byte
	// EnforceFactors lists authentication factors every user must have set up
	EnforceFactors []string
	// AnonymousCredentialsID is the subject of anonymous sessions;
	// empty disables the anonymous scope
	AnonymousCredentialsID string
	// DevDisableRedirectURIValidation skips exact redirect_uri matching.
	// Never enable outside local development.
	DevDisableRedirectURIValidation bool
}

// SessionConfig holds session management configuration
type SessionConfig struct {
	Expiration          time.Duration
	TouchExtension      time.Duration
	MaximumAge          time.Duration
	AnonymousExpiration time.Duration
	// AlgorithmicKey encrypts serialized anonymous sessions (32 bytes, hex)
	AlgorithmicKey []byte
}

// CookieConfig holds session cookie configuration
type CookieConfig struct {
	Name       string
	RootDomain string
	Secure     bool
	// AppDomains maps domain_id to an application cookie domain and
	// its post-login redirect. Entries come from GATEHOUSE_APP_DOMAINS
	// as comma-separated "id|domain|redirect_uri" triples.
	AppDomains map[string]AppDomain
}

// AppDomain is an additional cookie domain for a hosted application
type AppDomain struct {
	Domain      string
	RedirectURI string
}

// CredentialsConfig holds credential provider configuration
type CredentialsConfig struct {
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32
}

// LDAPConfig holds the external LDAP credentials provider configuration
type LDAPConfig struct {
	Enabled      bool
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

// RegistrationConfig holds self-registration configuration
type RegistrationConfig struct {
	Enabled    bool
	Expiration time.Duration
	// EncryptionKey encrypts registration keys embedded in invitation
	// tokens (32 bytes, hex)
	EncryptionKey []byte
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "gatehouse"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "gatehouse"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		OIDC: OIDCConfig{
			Issuer:                      getEnv("OIDC_ISSUER", "http://localhost:8080"),
			PublicAPIBaseURL:            getEnv("PUBLIC_API_BASE_URL", "http://localhost:8080"),
			AuthWebUIBaseURL:            getEnv("AUTH_WEBUI_BASE_URL", "http://localhost:8080/auth"),
			AuthorizationCodeLength:     parseInt("OIDC_AUTHORIZATION_CODE_LENGTH", 32),
			AuthorizationCodeExpiration: parseDuration("OIDC_AUTHORIZATION_CODE_EXPIRATION", "60s"),
			AccessTokenLength:           parseInt("OIDC_ACCESS_TOKEN_LENGTH", 32),
			AccessTokenExpiration:       parseDuration("OIDC_ACCESS_TOKEN_EXPIRATION", "4h"),
			RefreshTokenLength:          parseInt("OIDC_REFRESH_TOKEN_LENGTH", 32),
			RefreshTokenExpiration:      parseDuration("OIDC_REFRESH_TOKEN_EXPIRATION", "720h"),
			KeyEncryptionKey:            parseHexKey("OIDC_KEY_ENCRYPTION_KEY"),
			EnforceFactors:              parseList("OIDC_ENFORCE_FACTORS"),
			AnonymousCredentialsID:      getEnv("OIDC_ANONYMOUS_CID", ""),
			DevDisableRedirectURIValidation: parseBool(
				"OIDC_DEV_DISABLE_REDIRECT_URI_VALIDATION", false),
		},
		Session: SessionConfig{
			Expiration:          parseDuration("SESSION_EXPIRATION", "4h"),
			TouchExtension:      parseDuration("SESSION_TOUCH_EXTENSION", "1h"),
			MaximumAge:          parseDuration("SESSION_MAXIMUM_AGE", "720h"),
			AnonymousExpiration: parseDuration("SESSION_ANONYMOUS_EXPIRATION", "1h"),
			AlgorithmicKey:      parseHexKey("SESSION_ALGORITHMIC_KEY"),
		},
		Cookie: CookieConfig{
			Name:       getEnv("COOKIE_NAME", "GatehouseCookie"),
			RootDomain: getEnv("COOKIE_ROOT_DOMAIN", ""),
			Secure:     parseBool("COOKIE_SECURE", true),
			AppDomains: parseAppDomains("GATEHOUSE_APP_DOMAINS"),
		},
		Credentials: CredentialsConfig{
			Argon2Memory:      uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:  uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:  uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:   uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
		},
		LDAP: LDAPConfig{
			Enabled:      parseBool("LDAP_ENABLED", false),
			ProviderID:   getEnv("LDAP_PROVIDER_ID", "ldap"),
			URI:          getEnv("LDAP_URI", "ldap://localhost:389"),
			BindDN:       getEnv("LDAP_BIND_DN", ""),
			BindPassword: getEnv("LDAP_BIND_PASSWORD", ""),
			BaseDN:       getEnv("LDAP_BASE_DN", ""),
			Filter:       getEnv("LDAP_FILTER", "(objectClass=inetOrgPerson)"),
			AttrUsername: getEnv("LDAP_ATTR_USERNAME", "sAMAccountName"),
			PoolSize:     parseInt("LDAP_POOL_SIZE", 8),
			Timeout:      parseDuration("LDAP_TIMEOUT", "10s"),
		},
		Registration: RegistrationConfig{
			Enabled:       parseBool("REGISTRATION_ENABLED", false),
			Expiration:    parseDuration("REGISTRATION_EXPIRATION", "72h"),
			EncryptionKey: parseHexKey("REGISTRATION_ENCRYPTION_KEY"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "gatehouse"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if len(c.OIDC.KeyEncryptionKey) != 32 {
		return fmt.Errorf("OIDC_KEY_ENCRYPTION_KEY must be 32 bytes hex-encoded")
	}
	if len(c.Session.AlgorithmicKey) != 32 {
		return fmt.Errorf("SESSION_ALGORITHMIC_KEY must be 32 bytes hex-encoded")
	}
	if c.Registration.Enabled && len(c.Registration.EncryptionKey) != 32 {
		return fmt.Errorf("REGISTRATION_ENCRYPTION_KEY must be 32 bytes hex-encoded")
	}
	if c.LDAP.Enabled && c.LDAP.BaseDN == "" {
		return fmt.Errorf("LDAP_BASE_DN is required when LDAP is enabled")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

func parseList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseHexKey(key string) []byte {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil
	}
	return b
}

// parseAppDomains parses comma-separated "id|domain|redirect_uri" triples
func parseAppDomains(key string) map[string]AppDomain {
	out := make(map[string]AppDomain)
	value := os.Getenv(key)
	if value == "" {
		return out
	}
	for _, entry := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "|", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out[parts[0]] = AppDomain{Domain: parts[1], RedirectURI: parts[2]}
	}
	return out
}
