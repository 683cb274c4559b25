// Package config loads the daemon's YAML configuration file, substituting
// ${VAR} / ${VAR:-default} environment references before parsing.
package config

import (
	"fmt"
	"math/big"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full process-wide configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Publisher PublisherConfig `yaml:"publisher"`
	Chains    []ChainConfig   `yaml:"chains"`
}

// ServerConfig is the HTTP/gRPC surface's listen configuration.
type ServerConfig struct {
	HTTPAddr    string        `yaml:"http_addr"`
	GRPCAddr    string        `yaml:"grpc_addr"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// LoggingConfig controls the zap logger's construction.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// PublisherConfig mirrors internal/state.GlobalConfig's YAML-facing shape,
// plus the external service URLs the daemon dials at startup and the
// secret that signs admin session tokens.
type PublisherConfig struct {
	TxFee           string   `yaml:"tx_fee"`
	KeyName         string   `yaml:"key_name"`
	SubsLimitWallet int      `yaml:"subs_limit_wallet"`
	SubsLimitTotal  int      `yaml:"subs_limit_total"`
	TimerFrequency  int64    `yaml:"timer_frequency_seconds"`
	PMA             string   `yaml:"pma_address"`
	Controllers     []string `yaml:"controllers"`
	SignerURL       string   `yaml:"signer_url"`
	FeedURL         string   `yaml:"feed_url"`
	SIWEURL         string   `yaml:"siwe_url"` // empty uses the in-process LocalVerifier
	JWTSecret       string   `yaml:"jwt_secret"`
}

// ChainConfig seeds one chain's registry entry at startup.
type ChainConfig struct {
	ChainID          int64  `yaml:"chain_id"`
	RPC              string `yaml:"rpc"`
	MinBalance       string `yaml:"min_balance"`
	BlockGasLimit    int64  `yaml:"block_gas_limit"`
	Fee              string `yaml:"fee"`
	Symbol           string `yaml:"symbol"`
	MulticallAddress string `yaml:"multicall_address"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:-([^}]*))?\}`)

// Load reads path, substitutes environment references, and parses the
// result into a Config. Missing server, logging and publisher fields get
// ApplyDefaults' values rather than failing; chain fields get no defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	substituted := substituteEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// substituteEnv replaces ${VAR} and ${VAR:-default} with the environment's
// value, or the default, or leaves the token untouched if neither is set.
func substituteEnv(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name := groups[1]
		def := groups[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if def != "" {
			return def
		}
		return match
	})
}

// ApplyDefaults fills zero-value fields with the daemon's operational
// defaults: the 30-minute frequency floor and a conservative
// subscription cap.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":9090"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Publisher.TimerFrequency == 0 {
		c.Publisher.TimerFrequency = 1800
	}
	if c.Publisher.SubsLimitWallet == 0 {
		c.Publisher.SubsLimitWallet = 20
	}
	if c.Publisher.SubsLimitTotal == 0 {
		c.Publisher.SubsLimitTotal = 5000
	}
}

// ParseBigInt parses a decimal string field (tx_fee, min_balance, fee) into
// a *big.Int, treating an empty string as nil rather than zero so callers
// can distinguish "not configured" from "configured as zero".
func ParseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("config: %q is not a valid decimal integer", s)
	}
	return n, nil
}
