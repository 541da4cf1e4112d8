package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/parkside-labs/apm/internal/config"
	"github.com/parkside-labs/apm/internal/keeper"
	"github.com/parkside-labs/apm/internal/ledger"
	"github.com/parkside-labs/apm/internal/logger"
	"github.com/parkside-labs/apm/internal/pool"
	"github.com/parkside-labs/apm/internal/position"
	"github.com/parkside-labs/apm/internal/state"
	"github.com/parkside-labs/apm/internal/transfer"
	"github.com/parkside-labs/apm/internal/vault"
	"github.com/parkside-labs/apm/internal/web"
)

// main is the entry point for the APM position manager.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("APM Position Manager Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: int(config.DBPort),
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Adapter Wiring (with Safety Switch) ---
	var bank transfer.Bank
	var v vault.Vault
	var p pool.Pool

	if config.Mode == "live" {
		log.Warn().Msg("Initializing APM in LIVE mode. Real transactions will be submitted.")
		bank = transfer.NewGateway(config.GatewayURL)
		v = vault.NewGateway(config.GatewayURL, config.VaultID, config.VaultAddress)
		p = pool.NewGateway(config.GatewayURL, config.PoolID, config.PoolAddress)
	} else {
		log.Info().Msg("Initializing APM in SIM mode with the in-process ledger.")
		lg := ledger.New()
		bank = lg
		v = vault.NewSim(lg, "vault:custody", "usdc", "vusdc")
		p = pool.NewSim(lg, "pool:custody", "vusdc", "usdc")
	}

	// --- 3. Position Registry ---
	factory := position.NewFactory(bank, v, p, state.NewEventRecorder(), state.NewPositionStore())
	if err := factory.Restore(); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore position registry from database")
	}
	log.Info().Int("positions", len(factory.List())).Msg("Position registry ready")

	// --- 4. Start Web Server ---
	webPort := fmt.Sprintf("%d", config.WebPort)
	webServer := web.NewWebServer(webPort, factory)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting APM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Keeper Loop ---
	keeperInstance, err := keeper.NewKeeper(keeper.Config{
		Factory: factory,
		Account: config.KeeperAccount,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper instance")
	}

	interval := time.Duration(config.KeeperIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting keeper main loop")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	// Start the keeper loop (this will run until the context is cancelled)
	keeperInstance.RunLoop(ctx, interval)
}
