// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Escrow    EscrowConfig    `mapstructure:"escrow"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// EscrowConfig holds the wagering engine configuration.
type EscrowConfig struct {
	// Address holds escrowed value in the house ledger.
	Address        string        `mapstructure:"address"`
	CodeAttempts   int           `mapstructure:"code_attempts"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
	NativeSymbol   string        `mapstructure:"native_symbol"`
	NativeDecimals int32         `mapstructure:"native_decimals"`
	AllowedTokens  []TokenConfig `mapstructure:"allowed_tokens"`
	// FaucetAmount is credited in native units to every new user. Empty or
	// zero disables the faucet.
	FaucetAmount string `mapstructure:"faucet_amount"`
}

// TokenConfig is one allow-listed token.
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals int32  `mapstructure:"decimals"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// EscrowAddress returns the parsed escrow address.
func (e *EscrowConfig) EscrowAddress() common.Address {
	return common.HexToAddress(e.Address)
}

// Faucet returns the faucet amount in display units.
func (e *EscrowConfig) Faucet() decimal.Decimal {
	if strings.TrimSpace(e.FaucetAmount) == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(e.FaucetAmount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, DATABASE_HOST, ESCROW_LOCK_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can provide all config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Escrow.Address) {
		return fmt.Errorf("escrow.address %q is not a hex address", c.Escrow.Address)
	}
	if c.Escrow.EscrowAddress() == (common.Address{}) {
		return fmt.Errorf("escrow.address must not be the zero address")
	}
	if c.Escrow.CodeAttempts <= 0 {
		return fmt.Errorf("escrow.code_attempts must be positive")
	}
	if c.Escrow.LockTimeout <= 0 {
		return fmt.Errorf("escrow.lock_timeout must be positive")
	}
	if c.Escrow.NativeDecimals < 0 {
		return fmt.Errorf("escrow.native_decimals must not be negative")
	}
	for _, t := range c.Escrow.AllowedTokens {
		if !common.IsHexAddress(t.Address) || common.HexToAddress(t.Address) == (common.Address{}) {
			return fmt.Errorf("allowed token %q has an invalid address", t.Symbol)
		}
		if t.Symbol == "" || t.Decimals < 0 {
			return fmt.Errorf("allowed token %s needs a symbol and non-negative decimals", t.Address)
		}
	}
	if strings.TrimSpace(c.Escrow.FaucetAmount) != "" {
		d, err := decimal.NewFromString(c.Escrow.FaucetAmount)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("escrow.faucet_amount %q is not a non-negative number", c.Escrow.FaucetAmount)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wagerbot")
	v.SetDefault("database.name", "wagerbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Escrow defaults
	v.SetDefault("escrow.address", "0x000000000000000000000000000000000000e5c0")
	v.SetDefault("escrow.code_attempts", 10)
	v.SetDefault("escrow.lock_timeout", "5s")
	v.SetDefault("escrow.native_symbol", "ETH")
	v.SetDefault("escrow.native_decimals", 18)
	v.SetDefault("escrow.faucet_amount", "0")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9102")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
