// Package config loads the daemon configuration from YAML, a .env file and
// VRF_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/vrf_coordinator/internal/coordinator"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/ledger"
	"github.com/R3E-Network/vrf_coordinator/internal/wrapper"
)

// Config is the full daemon configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Chain       ChainConfig       `yaml:"chain"`
	Database    DatabaseConfig    `yaml:"database"`
	Audit       AuditConfig       `yaml:"audit"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Wrapper     WrapperConfig     `yaml:"wrapper"`
	Oracle      OracleConfig      `yaml:"oracle"`
}

// ServerConfig configures the HTTP read API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
	RateBurst       int           `yaml:"rate_burst"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChainConfig selects the block source. With an empty RPCURL the daemon
// runs a local counter that advances every BlockInterval.
type ChainConfig struct {
	RPCURL        string        `yaml:"rpc_url"`
	Timeout       time.Duration `yaml:"timeout"`
	BlockInterval time.Duration `yaml:"block_interval"`
	HashWindow    uint64        `yaml:"hash_window"`
}

// DatabaseConfig configures the Postgres event journal. Empty DSN disables it.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuditConfig configures the invariant auditor.
type AuditConfig struct {
	Schedule string `yaml:"schedule"`
}

// CoordinatorConfig holds the coordinator identity and its initial
// configuration record.
type CoordinatorConfig struct {
	Operator        string        `yaml:"operator"`
	MaxConsumers    int           `yaml:"max_consumers"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"`

	MinimumRequestConfirmations uint16           `yaml:"minimum_request_confirmations"`
	MaxGasLimit                 uint32           `yaml:"max_gas_limit"`
	MaxGasPrice                 int64            `yaml:"max_gas_price"`
	GasAfterPaymentCalculation  uint32           `yaml:"gas_after_payment_calculation"`
	FeeTiers                    vrf.FeeTierTable `yaml:"fee_tiers"`
}

// WrapperConfig configures the pay-per-call wrapper. An empty KeyHash
// selects the in-process oracle's key. Prefund is credited to the wrapper's
// subscription at start so fulfillments can be charged before the wrapper
// is reimbursed.
type WrapperConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Address                string `yaml:"address"`
	MinGasPrice            int64  `yaml:"min_gas_price"`
	WrapperGasOverhead     uint32 `yaml:"wrapper_gas_overhead"`
	CoordinatorGasOverhead uint32 `yaml:"coordinator_gas_overhead"`
	PremiumPercent         uint8  `yaml:"premium_percent"`
	KeyHash                string `yaml:"key_hash"`
	MaxNumWords            uint8  `yaml:"max_num_words"`
	Prefund                int64  `yaml:"prefund"`
}

// OracleConfig configures the in-process oracle. An empty WIF disables it.
type OracleConfig struct {
	WIF         string        `yaml:"wif"`
	MaxGasPrice int64         `yaml:"max_gas_price"`
	GasPrice    int64         `yaml:"gas_price"`
	Interval    time.Duration `yaml:"interval"`
}

// envOverrides are the environment variables applied over the file.
type envOverrides struct {
	HTTPAddr      string `env:"VRF_HTTP_ADDR"`
	LogLevel      string `env:"VRF_LOG_LEVEL"`
	LogFormat     string `env:"VRF_LOG_FORMAT"`
	PostgresDSN   string `env:"VRF_POSTGRES_DSN"`
	NeoRPCURL     string `env:"VRF_NEO_RPC_URL"`
	AuditSchedule string `env:"VRF_AUDIT_SCHEDULE"`
	Operator      string `env:"VRF_OPERATOR"`
	OracleWIF     string `env:"VRF_ORACLE_WIF"`
}

// Default returns a configuration that runs standalone.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			RateWindow:      time.Minute,
			RateBurst:       20,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Chain: ChainConfig{
			Timeout:       10 * time.Second,
			BlockInterval: time.Second,
			HashWindow:    256,
		},
		Audit: AuditConfig{Schedule: "@every 1m"},
		Coordinator: CoordinatorConfig{
			MaxConsumers:                ledger.DefaultMaxConsumers,
			CallbackTimeout:             5 * time.Second,
			MinimumRequestConfirmations: 3,
			MaxGasLimit:                 2_500_000,
			MaxGasPrice:                 1_000_000_000_000,
			GasAfterPaymentCalculation:  33285,
			FeeTiers:                    vrf.FeeTierTable{4, 3, 2, 1, 0, 1, 2, 3, 4},
		},
		Wrapper: WrapperConfig{
			Enabled:                true,
			MinGasPrice:            1,
			WrapperGasOverhead:     10_000,
			CoordinatorGasOverhead: 40_000,
			MaxNumWords:            10,
		},
		Oracle: OracleConfig{
			MaxGasPrice: 2_000_000_000,
			GasPrice:    1_000,
			Interval:    time.Second,
		},
	}
}

// Load reads path over Default. An empty path yields Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads envFiles (a missing file is skipped) and applies VRF_*
// environment variables to cfg.
func LoadFromEnv(cfg *Config, envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Addr, env.HTTPAddr)
	set(&cfg.Log.Level, env.LogLevel)
	set(&cfg.Log.Format, env.LogFormat)
	set(&cfg.Database.DSN, env.PostgresDSN)
	set(&cfg.Chain.RPCURL, env.NeoRPCURL)
	set(&cfg.Audit.Schedule, env.AuditSchedule)
	set(&cfg.Coordinator.Operator, env.Operator)
	set(&cfg.Oracle.WIF, env.OracleWIF)
	return nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server rate limits must not be negative")
	}
	if c.Chain.RPCURL == "" && c.Chain.BlockInterval <= 0 {
		return fmt.Errorf("chain.block_interval must be positive without rpc_url")
	}
	if _, err := c.Coordinator.OperatorAddress(); err != nil {
		return err
	}
	if c.Coordinator.MaxConsumers <= 0 {
		return fmt.Errorf("coordinator.max_consumers must be positive")
	}
	if err := coordinator.ValidateConfig(c.Coordinator.Global()); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	if c.Wrapper.Enabled {
		if c.Wrapper.Prefund < 0 {
			return fmt.Errorf("wrapper.prefund must not be negative")
		}
		if _, err := c.Wrapper.WrapperAddress(); err != nil {
			return err
		}
		if _, err := c.Wrapper.Record(util.Uint256{}); err != nil {
			return err
		}
		if c.Wrapper.KeyHash == "" && c.Oracle.WIF == "" {
			return fmt.Errorf("wrapper.key_hash is required without an oracle key")
		}
	}
	return nil
}

// OperatorAddress parses the operator as a Neo address or a hex script hash.
func (c CoordinatorConfig) OperatorAddress() (util.Uint160, error) {
	if c.Operator == "" {
		return util.Uint160{}, fmt.Errorf("coordinator.operator is required")
	}
	u, err := ParseAddress(c.Operator)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("coordinator.operator: %w", err)
	}
	return u, nil
}

// Global returns the coordinator configuration record.
func (c CoordinatorConfig) Global() vrf.GlobalConfig {
	return vrf.GlobalConfig{
		MinimumRequestConfirmations: c.MinimumRequestConfirmations,
		MaxGasLimit:                 c.MaxGasLimit,
		MaxGasPrice:                 c.MaxGasPrice,
		GasAfterPaymentCalculation:  c.GasAfterPaymentCalculation,
		FeeTiers:                    c.FeeTiers,
	}
}

// WrapperAddress returns the wrapper identity, a fixed default if unset.
func (w WrapperConfig) WrapperAddress() (util.Uint160, error) {
	if w.Address == "" {
		return util.Uint160{0x01}, nil
	}
	u, err := ParseAddress(w.Address)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("wrapper.address: %w", err)
	}
	return u, nil
}

// Record returns the wrapper configuration record. fallback is used when
// no key hash is configured.
func (w WrapperConfig) Record(fallback util.Uint256) (vrf.WrapperConfig, error) {
	keyHash := fallback
	if w.KeyHash != "" {
		h, err := util.Uint256DecodeStringLE(strings.TrimPrefix(w.KeyHash, "0x"))
		if err != nil {
			return vrf.WrapperConfig{}, fmt.Errorf("wrapper.key_hash: %w", err)
		}
		keyHash = h
	}
	rec := vrf.WrapperConfig{
		MinGasPrice:            w.MinGasPrice,
		WrapperGasOverhead:     w.WrapperGasOverhead,
		CoordinatorGasOverhead: w.CoordinatorGasOverhead,
		PremiumPercent:         w.PremiumPercent,
		KeyHash:                keyHash,
		MaxNumWords:            w.MaxNumWords,
	}
	if err := wrapper.ValidateConfig(rec); err != nil {
		return vrf.WrapperConfig{}, fmt.Errorf("wrapper: %w", err)
	}
	return rec, nil
}

// ParseAddress accepts a Neo N3 address or a 0x-optional little-endian
// script hash.
func ParseAddress(s string) (util.Uint160, error) {
	if u, err := address.StringToUint160(s); err == nil {
		return u, nil
	}
	return util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
}
