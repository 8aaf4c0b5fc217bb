package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Store struct {
		// "postgres" or "memory". Memory is for simulation deployments.
		Backend string `yaml:"backend"`
		DSN     string `yaml:"dsn"`
	} `yaml:"store"`
	Solana struct {
		RPCEndpoint string `yaml:"rpc_endpoint"`
		Commitment  string `yaml:"commitment"`
		// Base58 private key of the fee payer account. Usually supplied via
		// FEE_PAYER_KEY rather than the config file.
		FeePayerKey string `yaml:"fee_payer_key"`
		Simulate    bool   `yaml:"simulate"`
	} `yaml:"solana"`
	Fees struct {
		Mode                string  `yaml:"mode"`
		Percentage          float64 `yaml:"percentage"`
		FixedAmount         uint64  `yaml:"fixed_amount"`
		PlatformAddress     string  `yaml:"platform_address"`
		PlatformDescription string  `yaml:"platform_description"`
		PrimaryDescription  string  `yaml:"primary_description"`
	} `yaml:"fees"`
	Nonces struct {
		TTLSeconds            int64 `yaml:"ttl_seconds"`
		SweepIntervalSeconds  int64 `yaml:"sweep_interval_seconds"`
		ConfirmTimeoutSeconds int64 `yaml:"confirm_timeout_seconds"`
	} `yaml:"nonces"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.Store.Backend != "postgres" && cfg.Store.Backend != "memory" {
		return nil, errors.New("store.backend must be postgres or memory")
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.DSN == "" {
		return nil, errors.New("store.dsn is required for the postgres backend")
	}
	if !cfg.Solana.Simulate {
		if cfg.Solana.RPCEndpoint == "" {
			return nil, errors.New("solana.rpc_endpoint is required outside simulation")
		}
		if cfg.Solana.FeePayerKey == "" {
			return nil, errors.New("solana.fee_payer_key is required outside simulation")
		}
	}
	switch cfg.Fees.Mode {
	case "percentage":
		if cfg.Fees.Percentage <= 0 || cfg.Fees.Percentage >= 1 {
			return nil, errors.New("fees.percentage must be between 0 and 1")
		}
	case "fixed":
		if cfg.Fees.FixedAmount == 0 {
			return nil, errors.New("fees.fixed_amount must be positive")
		}
	default:
		return nil, errors.New("fees.mode must be percentage or fixed")
	}
	if cfg.Fees.PlatformAddress == "" {
		return nil, errors.New("fees.platform_address is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "postgres"
	}
	if cfg.Solana.Commitment == "" {
		cfg.Solana.Commitment = "confirmed"
	}
	if cfg.Fees.PlatformDescription == "" {
		cfg.Fees.PlatformDescription = "platform fee"
	}
	if cfg.Nonces.TTLSeconds <= 0 {
		cfg.Nonces.TTLSeconds = 300
	}
	if cfg.Nonces.SweepIntervalSeconds <= 0 {
		cfg.Nonces.SweepIntervalSeconds = 60
	}
	if cfg.Nonces.ConfirmTimeoutSeconds <= 0 {
		cfg.Nonces.ConfirmTimeoutSeconds = 30
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("SOLANA_RPC_ENDPOINT"); v != "" {
		cfg.Solana.RPCEndpoint = v
	}
	if v := os.Getenv("SOLANA_COMMITMENT"); v != "" {
		cfg.Solana.Commitment = v
	}
	if v := os.Getenv("FEE_PAYER_KEY"); v != "" {
		cfg.Solana.FeePayerKey = v
	}
	if v := os.Getenv("SIMULATE_SETTLEMENT"); v != "" {
		cfg.Solana.Simulate = v == "1" || v == "true"
	}
	if v := os.Getenv("FEE_MODE"); v != "" {
		cfg.Fees.Mode = v
	}
	if v := os.Getenv("FEE_PERCENTAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Fees.Percentage = f
		}
	}
	if v := os.Getenv("FEE_FIXED_AMOUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Fees.FixedAmount = n
		}
	}
	if v := os.Getenv("PLATFORM_ADDRESS"); v != "" {
		cfg.Fees.PlatformAddress = v
	}
	if v := os.Getenv("NONCE_TTL_SECONDS"); v != "" {
		cfg.Nonces.TTLSeconds = atoi64Or(cfg.Nonces.TTLSeconds, v)
	}
	if v := os.Getenv("SWEEP_INTERVAL_SECONDS"); v != "" {
		cfg.Nonces.SweepIntervalSeconds = atoi64Or(cfg.Nonces.SweepIntervalSeconds, v)
	}
	if v := os.Getenv("CONFIRM_TIMEOUT_SECONDS"); v != "" {
		cfg.Nonces.ConfirmTimeoutSeconds = atoi64Or(cfg.Nonces.ConfirmTimeoutSeconds, v)
	}
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
