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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/authz"
	"github.com/gatehouse/gatehouse/internal/client"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/cookie"
	"github.com/gatehouse/gatehouse/internal/credentials"
	"github.com/gatehouse/gatehouse/internal/credentials/builtin"
	"github.com/gatehouse/gatehouse/internal/credentials/ldap"
	"github.com/gatehouse/gatehouse/internal/observability/logger"
	"github.com/gatehouse/gatehouse/internal/observability/metrics"
	"github.com/gatehouse/gatehouse/internal/observability/tracing"
	"github.com/gatehouse/gatehouse/internal/oidc"
	"github.com/gatehouse/gatehouse/internal/otp"
	"github.com/gatehouse/gatehouse/internal/registration"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/store/postgres"
	"github.com/gatehouse/gatehouse/internal/tenant"
	"github.com/gatehouse/gatehouse/internal/token"
	transportHTTP "github.com/gatehouse/gatehouse/internal/transport/http"
)

// sweepInterval and sweepBatch bound the background expired-data sweeps
const (
	sweepInterval = 60 * time.Second
	sweepBatch    = 1000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting gatehouse authorization server")

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	if tracer != nil {
		defer tracer.Shutdown(ctx)
	}

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
	})
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	if meter != nil {
		defer meter.Shutdown(ctx)
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Repositories
	sessionRepo := postgres.NewSessionRepository(db, cfg.Session.AlgorithmicKey)
	tokenRepo := postgres.NewTokenRepository(db)
	clientRepo := postgres.NewClientRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	keyRepo := postgres.NewKeyRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	userRepo := postgres.NewUserRepository(db)
	otpRepo := postgres.NewOTPRepository(db, cfg.OIDC.KeyEncryptionKey)

	// Services
	auditService := audit.NewService(auditRepo)

	tokenService := token.NewService(tokenRepo)
	sessionService := session.NewService(sessionRepo, tokenService, session.Config{
		Expiration:          cfg.Session.Expiration,
		TouchExtension:      cfg.Session.TouchExtension,
		MaximumAge:          cfg.Session.MaximumAge,
		AnonymousExpiration: cfg.Session.AnonymousExpiration,
		AlgorithmicKey:      cfg.Session.AlgorithmicKey,
	})

	passwordHasher := builtin.NewPasswordHasher(
		cfg.Credentials.Argon2Memory,
		cfg.Credentials.Argon2Iterations,
		cfg.Credentials.Argon2Parallelism,
		cfg.Credentials.Argon2SaltLength,
		cfg.Credentials.Argon2KeyLength,
	)
	builtinProvider := builtin.NewProvider("local", userRepo, passwordHasher)

	credentialsService := credentials.NewService()
	credentialsService.Register(builtinProvider)
	if cfg.LDAP.Enabled {
		credentialsService.Register(ldap.NewProvider(ldap.Config{
			ProviderID:   cfg.LDAP.ProviderID,
			URI:          cfg.LDAP.URI,
			BindDN:       cfg.LDAP.BindDN,
			BindPassword: cfg.LDAP.BindPassword,
			BaseDN:       cfg.LDAP.BaseDN,
			Filter:       cfg.LDAP.Filter,
			AttrUsername: cfg.LDAP.AttrUsername,
			PoolSize:     cfg.LDAP.PoolSize,
			Timeout:      cfg.LDAP.Timeout,
		}))
		slog.Info("ldap credentials provider enabled",
			logger.Provider(cfg.LDAP.ProviderID))
	}

	tenantService := tenant.NewService(tenantRepo, auditService)
	authzResolver := authz.NewResolver(roleRepo)
	otpService := otp.NewService(otpRepo, cfg.Observability.ServiceName)
	clientService := client.NewService(clientRepo, cfg.OIDC.DevDisableRedirectURIValidation)

	signer := oidc.NewSigner(keyRepo, cfg.OIDC.KeyEncryptionKey)
	if err := signer.Init(ctx); err != nil {
		slog.Error("failed to initialize id token signer", logger.Error(err))
		os.Exit(1)
	}

	oidcService := oidc.NewService(oidc.Config{
		Issuer:                      cfg.OIDC.Issuer,
		AuthorizationCodeLength:     cfg.OIDC.AuthorizationCodeLength,
		AuthorizationCodeExpiration: cfg.OIDC.AuthorizationCodeExpiration,
		AccessTokenLength:           cfg.OIDC.AccessTokenLength,
		AccessTokenExpiration:       cfg.OIDC.AccessTokenExpiration,
		RefreshTokenLength:          cfg.OIDC.RefreshTokenLength,
		RefreshTokenExpiration:      cfg.OIDC.RefreshTokenExpiration,
		EnforceFactors:              cfg.OIDC.EnforceFactors,
		AnonymousCredentialsID:      cfg.OIDC.AnonymousCredentialsID,
	}, sessionService, tokenService, clientService, tenantService,
		credentialsService, authzResolver, otpService, signer, auditService)

	var registrationService *registration.Service
	if cfg.Registration.Enabled {
		registrationRepo := postgres.NewRegistrationRepository(db)
		registrationService = registration.NewService(registrationRepo,
			builtinProvider, tenantService, auditService,
			cfg.Registration.EncryptionKey, cfg.Registration.Expiration)
	}

	cookieService := cookie.NewService(cookie.Config{
		Name:       cfg.Cookie.Name,
		RootDomain: cfg.Cookie.RootDomain,
		Secure:     cfg.Cookie.Secure,
		AppDomains: appDomains(cfg.Cookie.AppDomains),
	})

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	handler := transportHTTP.NewHandler(
		oidcService,
		cookieService,
		otpService,
		registrationService,
		cfg.OIDC.AuthWebUIBaseURL,
		cfg.OIDC.PublicAPIBaseURL,
	)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Background sweeps, one per expiring store
	sweepCtx, stopSweeps := context.WithCancel(ctx)
	defer stopSweeps()
	go sweep(sweepCtx, "sessions", sessionService.DeleteExpired)
	go sweep(sweepCtx, "tokens", tokenService.DeleteExpired)
	if registrationService != nil {
		go sweep(sweepCtx, "registrations", registrationService.DeleteExpired)
	}

	go func() {
		slog.Info("starting http server", logger.Component("server"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopSweeps()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	slog.Info("server stopped")
}

// sweep periodically deletes expired rows in capped batches
func sweep(ctx context.Context, name string, deleteExpired func(context.Context, int) (int, error)) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := deleteExpired(ctx, sweepBatch)
			if err != nil {
				slog.ErrorContext(ctx, "expired-data sweep failed",
					logger.Component(name), logger.Error(err))
				continue
			}
			if deleted > 0 {
				slog.InfoContext(ctx, "swept expired rows",
					logger.Component(name), slog.Int("deleted", deleted))
			}
		}
	}
}

func appDomains(in map[string]config.AppDomain) map[string]cookie.AppDomain {
	out := make(map[string]cookie.AppDomain, len(in))
	for id, d := range in {
		out[id] = cookie.AppDomain{Domain: d.Domain, RedirectURI: d.RedirectURI}
	}
	return out
}
