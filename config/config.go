package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/raid-guild/x402-facilitator-go/types"
)

type Config struct {
	Server struct {
		Addr                   string `yaml:"addr" env:"SERVER_ADDR"`
		ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS"`
	} `yaml:"server"`
	DB struct {
		Driver string `yaml:"driver" env:"DB_DRIVER"`
		DSN    string `yaml:"dsn" env:"DATABASE_URL"`
	} `yaml:"db"`
	Auth struct {
		StaticAPIKey string `yaml:"static_api_key" env:"STATIC_API_KEY"`
		UseDatabase  bool   `yaml:"use_database" env:"AUTH_USE_DATABASE"`
		JWTSecret    string `yaml:"jwt_secret" env:"JWT_SECRET"`
		JWTIssuer    string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	} `yaml:"auth"`
	Facilitator struct {
		PrivateKey     string            `yaml:"private_key" env:"PRIVATE_KEY"`
		RPCURLs        map[string]string `yaml:"rpc_urls" env:"RPC_URLS" envKeyValSeparator:"="`
		SepoliaRPC     string            `yaml:"-" env:"RPC_URL_SEPOLIA"`
		BaseSepoliaRPC string            `yaml:"-" env:"RPC_URL_BASE_SEPOLIA"`
		GasLimit       uint64            `yaml:"gas_limit" env:"GAS_LIMIT"`
		WaitForReceipt bool              `yaml:"wait_for_receipt" env:"WAIT_FOR_RECEIPT"`
	} `yaml:"facilitator"`
	Payer struct {
		PrivateKey     string `yaml:"private_key" env:"PAYER_PRIVATE_KEY"`
		DefaultNetwork string `yaml:"default_network" env:"DEFAULT_NETWORK"`
	} `yaml:"payer"`
	Payments struct {
		MaxTimeoutSeconds int64  `yaml:"max_timeout_seconds" env:"MAX_TIMEOUT_SECONDS"`
		Description       string `yaml:"description" env:"PAYMENT_DESCRIPTION"`
	} `yaml:"payments"`
	RateLimit struct {
		PerSecond float64 `yaml:"per_second" env:"RATE_LIMIT_PER_SECOND"`
		Burst     int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
	} `yaml:"rate_limit"`
	Telemetry struct {
		OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	} `yaml:"telemetry"`
}

// Load reads the YAML file at path, or CONFIG_PATH when path is empty, and
// applies environment overrides. Without a file the configuration comes
// from the environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 5
	}
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = "pgx"
	}
	if cfg.Payer.DefaultNetwork == "" {
		cfg.Payer.DefaultNetwork = string(types.NetworkCronos)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "x402-facilitator"
	}
	if cfg.Facilitator.RPCURLs == nil {
		cfg.Facilitator.RPCURLs = make(map[string]string)
	}
	if cfg.Facilitator.SepoliaRPC != "" {
		cfg.Facilitator.RPCURLs[string(types.NetworkSepolia)] = cfg.Facilitator.SepoliaRPC
	}
	if cfg.Facilitator.BaseSepoliaRPC != "" {
		cfg.Facilitator.RPCURLs[string(types.NetworkBaseSepolia)] = cfg.Facilitator.BaseSepoliaRPC
	}
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "pgx", "sqlite":
	default:
		return fmt.Errorf("db.driver must be pgx or sqlite, got %q", c.DB.Driver)
	}
	if c.Auth.UseDatabase && c.DB.DSN == "" {
		return errors.New("auth.use_database requires db.dsn")
	}
	if c.Auth.UseDatabase && c.Auth.StaticAPIKey != "" {
		return errors.New("auth.static_api_key and auth.use_database are mutually exclusive")
	}
	if c.Payments.MaxTimeoutSeconds < 0 {
		return errors.New("payments.max_timeout_seconds must not be negative")
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	return nil
}

// ValidateFacilitator checks the settings needed to settle payments.
func (c *Config) ValidateFacilitator() error {
	if strings.TrimSpace(c.Facilitator.PrivateKey) == "" {
		return errors.New("facilitator.private_key is required")
	}
	if len(c.Facilitator.RPCURLs) == 0 {
		return errors.New("facilitator.rpc_urls needs at least one network")
	}
	return nil
}

// Networks returns the RPC URLs keyed by network.
func (c *Config) Networks() map[types.Network]string {
	out := make(map[types.Network]string, len(c.Facilitator.RPCURLs))
	for network, url := range c.Facilitator.RPCURLs {
		out[types.Network(network)] = url
	}
	return out
}
