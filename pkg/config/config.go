package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "5m" or "30s"
// in both JSON and YAML config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

// UnmarshalText lets env overrides like MANTLEBOT_WALLET_PENDING_TTL=10m work.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.set(string(text))
}

func (d *Duration) set(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Chain    ChainConfig    `json:"chain" yaml:"chain"`
	Wallet   WalletConfig   `json:"wallet" yaml:"wallet"`
	OpenAI   OpenAIConfig   `json:"openai" yaml:"openai"`
	LogLevel string         `json:"log_level" yaml:"log_level" env:"MANTLEBOT_LOG_LEVEL"`
}

type TelegramConfig struct {
	Token string `json:"token" yaml:"token" env:"MANTLEBOT_TELEGRAM_TOKEN"`
}

type ChainConfig struct {
	RPC          string `json:"rpc" yaml:"rpc" env:"MANTLEBOT_CHAIN_RPC"`
	ChainID      int64  `json:"chain_id" yaml:"chain_id" env:"MANTLEBOT_CHAIN_ID"`
	NativeSymbol string `json:"native_symbol" yaml:"native_symbol" env:"MANTLEBOT_CHAIN_NATIVE_SYMBOL"`
	TokenAddress string `json:"token_address" yaml:"token_address" env:"MANTLEBOT_CHAIN_TOKEN_ADDRESS"`
	TokenSymbol  string `json:"token_symbol" yaml:"token_symbol" env:"MANTLEBOT_CHAIN_TOKEN_SYMBOL"`
	ExplorerURL  string `json:"explorer_url" yaml:"explorer_url" env:"MANTLEBOT_CHAIN_EXPLORER_URL"`

	// RPCTimeout bounds every network call, broadcast included.
	RPCTimeout Duration `json:"rpc_timeout" yaml:"rpc_timeout" env:"MANTLEBOT_CHAIN_RPC_TIMEOUT"`
}

type WalletConfig struct {
	// EncryptionKey is the hex-encoded 32-byte secret used to encrypt private
	// keys at rest in memory. Rotating it invalidates every stored key.
	EncryptionKey string   `json:"encryption_key" yaml:"encryption_key" env:"MANTLEBOT_ENCRYPTION_KEY"`
	PendingTTL    Duration `json:"pending_ttl" yaml:"pending_ttl" env:"MANTLEBOT_WALLET_PENDING_TTL"`
	SweepInterval Duration `json:"sweep_interval" yaml:"sweep_interval" env:"MANTLEBOT_WALLET_SWEEP_INTERVAL"`
}

type OpenAIConfig struct {
	APIKey string `json:"api_key" yaml:"api_key" env:"MANTLEBOT_OPENAI_API_KEY"`
	Model  string `json:"model" yaml:"model" env:"MANTLEBOT_OPENAI_MODEL"`
}

// DefaultConfig returns a config with sane defaults; secrets stay empty.
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			RPC:          "https://rpc.sepolia.mantle.xyz",
			ChainID:      5003,
			NativeSymbol: "MNT",
			TokenSymbol:  "USDT",
			ExplorerURL:  "https://explorer.sepolia.mantle.xyz",
			RPCTimeout:   Duration(30 * time.Second),
		},
		Wallet: WalletConfig{
			PendingTTL:    Duration(5 * time.Minute),
			SweepInterval: Duration(time.Minute),
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		LogLevel: "info",
	}
}

// LoadConfig reads the config file at path (JSON or YAML by extension) and
// applies environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse json config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the config as JSON, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields without which the bot cannot start.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Chain.RPC == "" {
		return fmt.Errorf("chain.rpc is required")
	}
	if c.Chain.TokenAddress == "" {
		return fmt.Errorf("chain.token_address is required")
	}
	if c.Wallet.EncryptionKey == "" {
		return fmt.Errorf("wallet.encryption_key is required")
	}
	if c.Wallet.PendingTTL <= 0 || c.Wallet.SweepInterval <= 0 {
		return fmt.Errorf("wallet.pending_ttl and wallet.sweep_interval must be positive")
	}
	return nil
}
