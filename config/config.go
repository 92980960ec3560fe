package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Sale     SaleConfig     `mapstructure:"sale"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Owner    OwnerConfig    `mapstructure:"owner"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// SaleConfig carries deployment-fixed sale parameters: the global hard cap
// across all rounds and the validation bounds for operator-set values.
type SaleConfig struct {
	GlobalHardCap    int64 `mapstructure:"global_hard_cap"`
	MinRate          int64 `mapstructure:"min_rate"`
	MaxRate          int64 `mapstructure:"max_rate"`
	MinIndividualCap int64 `mapstructure:"min_individual_cap"`
	MaxIndividualCap int64 `mapstructure:"max_individual_cap"`
	MinSoftCap       int64 `mapstructure:"min_soft_cap"`
	MaxSoftCap       int64 `mapstructure:"max_soft_cap"`
}

// LedgerConfig seeds the per-transaction deposit ceilings on first boot.
// Runtime changes go through the set-limits operation, not config.
type LedgerConfig struct {
	SettlementCeiling int64 `mapstructure:"settlement_ceiling"`
	TokenCeiling      int64 `mapstructure:"token_ceiling"`
}

// TransferConfig points at the external token and settlement rails.
type TransferConfig struct {
	TokenAPIURL      string        `mapstructure:"token_api_url"`
	SettlementAPIURL string        `mapstructure:"settlement_api_url"`
	SecretKey        string        `mapstructure:"secret_key"` // HMAC key for signing outbound requests
	CustodianID      string        `mapstructure:"custodian_id"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// OwnerConfig seeds the sale owner account on first boot.
type OwnerConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: TSE_ (Token Sale Engine).
// Nested keys use underscore: TSE_DATABASE_HOST, TSE_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "token_sale")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "token-sale-engine")
	v.SetDefault("sale.global_hard_cap", 10_000_000)
	v.SetDefault("sale.min_rate", 1)
	v.SetDefault("sale.max_rate", 1_000_000)
	v.SetDefault("sale.min_individual_cap", 1)
	v.SetDefault("sale.max_individual_cap", 10_000_000)
	v.SetDefault("sale.min_soft_cap", 1)
	v.SetDefault("sale.max_soft_cap", 10_000_000)
	v.SetDefault("ledger.settlement_ceiling", 1_000_000)
	v.SetDefault("ledger.token_ceiling", 100_000_000)
	v.SetDefault("transfer.token_api_url", "")
	v.SetDefault("transfer.settlement_api_url", "")
	v.SetDefault("transfer.secret_key", "")
	v.SetDefault("transfer.custodian_id", "00000000-0000-0000-0000-000000000000")
	v.SetDefault("transfer.timeout", "10s")
	v.SetDefault("owner.username", "owner")
	v.SetDefault("owner.password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: TSE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("TSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
