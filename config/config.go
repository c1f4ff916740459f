package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults for environment-driven settings.
const (
	DefaultEVMRPCURL       = "https://sepolia.base.org"
	DefaultSVMRPCURL       = "https://api.devnet.solana.com"
	DefaultPort            = "4022"
	DefaultCashbackPercent = 2
	DefaultLogLevel        = "info"
)

// Config holds every runtime setting. It is built once at startup and
// handed to components by reference; nothing reads the environment after
// that.
type Config struct {
	// EVMPrivateKey is the hex settlement key, optional 0x prefix.
	// Empty means EVM networks are not operable.
	EVMPrivateKey string
	EVMRPCURL     string

	// SVMPrivateKey is the base58 fee-payer key. Empty means SVM
	// networks are not operable.
	SVMPrivateKey string
	SVMRPCURL     string

	// EVMCashbackToken is the ERC-20 contract used for cashback
	// transfers on EVM settlements.
	EVMCashbackToken string

	// CashbackPercent is reported in cashback records.
	CashbackPercent int64

	Port     string
	LogLevel string
}

// FromEnv reads the configuration from environment variables, applying
// defaults. Callers load .env files before invoking this.
func FromEnv() (*Config, error) {
	cfg := &Config{
		EVMPrivateKey:    os.Getenv("EVM_PRIVATE_KEY"),
		EVMRPCURL:        getenvDefault("EVM_RPC_URL", DefaultEVMRPCURL),
		SVMPrivateKey:    os.Getenv("SVM_PRIVATE_KEY"),
		SVMRPCURL:        getenvDefault("SVM_RPC_URL", DefaultSVMRPCURL),
		EVMCashbackToken: os.Getenv("EVM_CASHBACK_TOKEN"),
		CashbackPercent:  DefaultCashbackPercent,
		Port:             getenvDefault("PORT", DefaultPort),
		LogLevel:         getenvDefault("LOG_LEVEL", DefaultLogLevel),
	}

	if raw := os.Getenv("CASHBACK_PERCENT"); raw != "" {
		pct, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CASHBACK_PERCENT %q: %w", raw, err)
		}
		cfg.CashbackPercent = pct
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a configuration that cannot operate any network.
func (c *Config) Validate() error {
	if c.EVMPrivateKey == "" && c.SVMPrivateKey == "" {
		return fmt.Errorf("at least one of EVM_PRIVATE_KEY or SVM_PRIVATE_KEY must be set")
	}
	if c.CashbackPercent < 0 {
		return fmt.Errorf("CASHBACK_PERCENT must not be negative")
	}
	return nil
}

func (c *Config) HasEVMKey() bool { return c.EVMPrivateKey != "" }
func (c *Config) HasSVMKey() bool { return c.SVMPrivateKey != "" }

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
