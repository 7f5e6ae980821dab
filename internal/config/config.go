// Package config loads the router's configuration from a YAML file layered
// with environment variable overrides, the same two-layer pattern the
// teacher's service config uses. ADMIN_PKEY, ADMIN_ADDRESS and
// ATTESTATION_API_URL are read only from the environment, never from YAML;
// RPC_URL_{chainId} and CHAIN_ID_{symbol}, when set, override a chain's
// YAML rpc_url and a token's YAML address.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAttestationAPIURL is used when ATTESTATION_API_URL is unset.
const DefaultAttestationAPIURL = "https://iris-api-sandbox.circle.com"

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	CORS        CORSConfig        `yaml:"cors"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Store       StoreConfig       `yaml:"store"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	Chains      []ChainConfig     `yaml:"chains"`
	AllowanceVaultAddress string  `yaml:"allowance_vault_address"`

	// Populated from the environment only; never present in YAML.
	Admin             AdminConfig
	AttestationAPIURL string
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// TimeoutsConfig covers every suspension point named in §5.
type TimeoutsConfig struct {
	PublisherTimeout    time.Duration `yaml:"publisher_timeout"`
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout"`
	AttestationV1Interval time.Duration `yaml:"attestation_v1_interval"`
	AttestationV2Interval time.Duration `yaml:"attestation_v2_interval"`
	AttestationBudget   time.Duration `yaml:"attestation_budget"`
}

type ReconcilerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// TokenConfig is one stablecoin's address on one chain.
type TokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

// ChainConfig is the YAML shape of one supported network; RPCURL is replaced
// by RPC_URL_{chainId} at Load time when that variable is set, and the YAML
// value is used otherwise.
type ChainConfig struct {
	ChainID                   uint64        `yaml:"chain_id"`
	Name                      string        `yaml:"name"`
	RPCURL                    string        `yaml:"rpc_url"`
	TokenMessengerAddress     string        `yaml:"token_messenger_address"`
	MessageTransmitterAddress string        `yaml:"message_transmitter_address"`
	DestinationDomain         *uint32       `yaml:"destination_domain"`
	Decimals                  uint8         `yaml:"decimals"`
	Tokens                    []TokenConfig `yaml:"tokens"`
}

// AdminConfig carries the admin signer's secrets, sourced from the
// environment only.
type AdminConfig struct {
	PrivateKeyHex string
	Address       string
}

// Load reads config from configPath, then applies environment overrides,
// then validates.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if dir := os.Getenv("STORE_DATA_DIR"); dir != "" {
		cfg.Store.DataDir = dir
	}

	cfg.Admin.PrivateKeyHex = os.Getenv("ADMIN_PKEY")
	cfg.Admin.Address = os.Getenv("ADMIN_ADDRESS")

	cfg.AttestationAPIURL = os.Getenv("ATTESTATION_API_URL")
	if cfg.AttestationAPIURL == "" {
		cfg.AttestationAPIURL = DefaultAttestationAPIURL
	}

	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if url := os.Getenv(fmt.Sprintf("RPC_URL_%d", c.ChainID)); url != "" {
			c.RPCURL = url
		}
		for j := range c.Tokens {
			tok := &c.Tokens[j]
			envKey := fmt.Sprintf("CHAIN_ID_%s", strings.ToUpper(tok.Symbol))
			if override := os.Getenv(envKey); override != "" {
				tok.Address = override
			}
		}
	}
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	if c.Admin.PrivateKeyHex == "" {
		return fmt.Errorf("ADMIN_PKEY is required")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for _, chain := range c.Chains {
		if chain.RPCURL == "" {
			return fmt.Errorf("chain %d (%s): no RPC URL configured (set RPC_URL_%d or chains[].rpc_url)", chain.ChainID, chain.Name, chain.ChainID)
		}
	}
	if c.Timeouts.PublisherTimeout <= 0 {
		c.Timeouts.PublisherTimeout = 13 * time.Second
	}
	if c.Timeouts.ReceiptTimeout <= 0 {
		c.Timeouts.ReceiptTimeout = 2 * time.Minute
	}
	if c.Timeouts.AttestationBudget <= 0 {
		c.Timeouts.AttestationBudget = 20 * time.Minute
	}
	if c.Reconciler.Interval <= 0 {
		c.Reconciler.Interval = 30 * time.Second
	}
	return nil
}

// ParseChainID is a small helper for handlers that accept a chain id as a
// path/query parameter.
func ParseChainID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
