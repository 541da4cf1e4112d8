package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables. These are
// populated at startup by the LoadConfig function.
var (
	// Mode selects the adapter wiring: "sim" for the in-process ledger,
	// "live" for the protocol REST gateway.
	Mode string

	// GatewayURL is the base URL of the protocol REST gateway (live mode).
	GatewayURL string
	// VaultID identifies the yield vault at the gateway.
	VaultID string
	// VaultAddress is the vault's on-chain account, the spender approved at
	// position initialization.
	VaultAddress string
	// PoolID identifies the lending pool at the gateway.
	PoolID string
	// PoolAddress is the pool's on-chain account.
	PoolAddress string

	// KeeperAccount is the account the keeper submits rebalances as.
	KeeperAccount string
	// KeeperIntervalSeconds is the keeper cycle interval.
	KeeperIntervalSeconds uint64

	// WebPort is the port for the web API and metrics endpoint.
	WebPort uint64

	// Database connection parameters.
	DBHost     string
	DBPort     uint64
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("APM_MODE")
	if err != nil {
		return err
	}
	if Mode != "sim" && Mode != "live" {
		return errors.New("APM_MODE must be \"sim\" or \"live\", got: " + Mode)
	}

	if Mode == "live" {
		GatewayURL, err = getEnv("APM_GATEWAY_URL")
		if err != nil {
			return err
		}
		VaultID, err = getEnv("APM_VAULT_ID")
		if err != nil {
			return err
		}
		VaultAddress, err = getEnv("APM_VAULT_ADDRESS")
		if err != nil {
			return err
		}
		PoolID, err = getEnv("APM_POOL_ID")
		if err != nil {
			return err
		}
		PoolAddress, err = getEnv("APM_POOL_ADDRESS")
		if err != nil {
			return err
		}
	}

	KeeperAccount, err = getEnv("APM_KEEPER_ACCOUNT")
	if err != nil {
		return err
	}

	KeeperIntervalSeconds, err = getEnvAsUint64("APM_KEEPER_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	WebPort, err = getEnvAsUint64("APM_WEB_PORT")
	if err != nil {
		return err
	}

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}
	DBPort, err = getEnvAsUint64("DB_PORT")
	if err != nil {
		return err
	}
	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}
	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}
	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}
	DBSSLMode, err = getEnv("DB_SSLMODE")
	if err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("KeeperAccount", KeeperAccount).
		Uint64("KeeperIntervalSeconds", KeeperIntervalSeconds).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}
