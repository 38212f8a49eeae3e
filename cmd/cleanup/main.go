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

// Command cleanup deletes expired sessions, tokens and pending
// registrations in one pass. The server runs the same sweeps in the
// background; this command exists for cron-style operation and for
// catching up after downtime.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/observability/logger"
	"github.com/gatehouse/gatehouse/internal/store/postgres"
)

// batchSize caps each delete statement so a large backlog cannot hold
// row locks for the whole run
const batchSize = 5000

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

	ctx := context.Background()

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

	sweeps := []struct {
		name          string
		deleteExpired func(context.Context, int) (int, error)
	}{
		{"sessions", postgres.NewSessionRepository(db, cfg.Session.AlgorithmicKey).DeleteExpired},
		{"tokens", postgres.NewTokenRepository(db).DeleteExpired},
		{"registrations", postgres.NewRegistrationRepository(db).DeleteExpired},
	}

	failed := false
	for _, s := range sweeps {
		total := 0
		for {
			deleted, err := s.deleteExpired(ctx, batchSize)
			if err != nil {
				slog.Error("cleanup failed", logger.Component(s.name), logger.Error(err))
				failed = true
				break
			}
			total += deleted
			if deleted < batchSize {
				break
			}
		}
		slog.Info("cleanup finished", logger.Component(s.name), slog.Int("deleted", total))
	}
	if failed {
		os.Exit(1)
	}
}
