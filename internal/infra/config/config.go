package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Tokens    TokenSettings     `mapstructure:"tokens"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Retention RetentionSettings `mapstructure:"retention"`
	Audit     AuditSettings     `mapstructure:"audit"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the family revocation cache connection.
type RedisSettings struct {
	Enabled             bool   `mapstructure:"enabled"`
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	DB                  int    `mapstructure:"db"`
	Password            string `mapstructure:"password"`
	TLSEnabled          bool   `mapstructure:"tls_enabled"`
	FamilyRevokedPrefix string `mapstructure:"family_revoked_prefix"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// TokenSettings governs issuance, rotation, and the reuse grace window.
type TokenSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	GracePeriod     time.Duration `mapstructure:"grace_period"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RetentionSettings governs the sweeper and soft-delete windows.
type RetentionSettings struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	TokenRetention   time.Duration `mapstructure:"token_retention"`
	AccountRetention time.Duration `mapstructure:"account_retention"`
}

// AuditSettings tunes the in-process audit dispatcher.
type AuditSettings struct {
	BufferSize int `mapstructure:"buffer_size"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SESSIONS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.family_revoked_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"tokens.key_directory",
		"tokens.issuer",
		"tokens.access_token_ttl",
		"tokens.refresh_token_ttl",
		"tokens.grace_period",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"retention.sweep_interval",
		"retention.token_retention",
		"retention.account_retention",
		"audit.buffer_size",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the rotation engine cannot run with.
func (c *AppConfig) Validate() error {
	if c.Tokens.KeyDirectory == "" {
		return fmt.Errorf("config: tokens.key_directory is required")
	}
	if c.Tokens.Issuer == "" {
		return fmt.Errorf("config: tokens.issuer is required")
	}
	if c.Tokens.AccessTokenTTL <= 0 {
		return fmt.Errorf("config: tokens.access_token_ttl must be positive")
	}
	if c.Tokens.RefreshTokenTTL <= 0 {
		return fmt.Errorf("config: tokens.refresh_token_ttl must be positive")
	}
	if c.Tokens.GracePeriod <= 0 {
		return fmt.Errorf("config: tokens.grace_period must be positive")
	}
	if c.Tokens.GracePeriod >= c.Tokens.RefreshTokenTTL {
		return fmt.Errorf("config: tokens.grace_period must be shorter than the refresh token ttl")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("config: retention.sweep_interval must be positive")
	}
	if c.Retention.TokenRetention <= 0 {
		return fmt.Errorf("config: retention.token_retention must be positive")
	}
	if c.Retention.AccountRetention <= 0 {
		return fmt.Errorf("config: retention.account_retention must be positive")
	}
	if c.Argon2.Memory > 0 && c.Argon2.Memory < 8*1024 {
		return fmt.Errorf("config: argon2.memory below 8 MiB is unsafe")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sessions-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "sessions")
	v.SetDefault("postgres.password", "sessions_password")
	v.SetDefault("postgres.database", "sessions")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.family_revoked_prefix", "sessions:family_revoked")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "sessions")

	v.SetDefault("tokens.key_directory", "./secrets")
	v.SetDefault("tokens.issuer", "sessions-service")
	v.SetDefault("tokens.access_token_ttl", "15m")
	v.SetDefault("tokens.refresh_token_ttl", "168h")
	v.SetDefault("tokens.grace_period", "2s")

	v.SetDefault("argon2.memory", 65536)
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("retention.sweep_interval", "1h")
	v.SetDefault("retention.token_retention", "720h")
	v.SetDefault("retention.account_retention", "720h")

	v.SetDefault("audit.buffer_size", 1024)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "SESSIONS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
