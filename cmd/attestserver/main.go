// @title Allowlist Attestor API
// @version 1.0
// @description Merkle-backed allowlist attestation service: proposal commitment and inclusion/absence proofs
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:3000
// @BasePath /
// @schemes http https
// @accept json
// @produce json
package main

import (
	"log"

	"github.com/andrey/allowlist-attestor/internal/allowlist/proofsvc"
	"github.com/andrey/allowlist-attestor/internal/allowlist/store"
	"github.com/andrey/allowlist-attestor/internal/api"
	"github.com/andrey/allowlist-attestor/internal/config"
	"github.com/andrey/allowlist-attestor/internal/infra/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.NewWithConfig(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	db, err := store.Open(cfg.DatabaseURL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	proposalStore := store.New(db, logger)
	proofService := proofsvc.New(proposalStore)

	server := api.NewServer(proposalStore, proofService, logger, cfg)
	if err := server.Start(); err != nil {
		logger.Logf("ERROR server failed to start: %v", err)
	}
}
