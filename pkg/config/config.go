package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Hold     HoldConfig     `mapstructure:"hold"`
	Auth     AuthConfig     `mapstructure:"auth"`
	OTel     OTelConfig     `mapstructure:"otel"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
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
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	TxTimeout       time.Duration `mapstructure:"tx_timeout"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
//
// DB is shared by the seat-lock keys, the seat-status overlay and the
// keyspace-notification subscription: all three must live in the same
// logical database or expiry events and overlay reads diverge.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers       []string    `mapstructure:"brokers"`
	ConsumerGroup string      `mapstructure:"consumer_group"`
	ClientID      string      `mapstructure:"client_id"`
	Topics        TopicConfig `mapstructure:"topics"`
}

// TopicConfig names the topics the booking core produces to and consumes from
type TopicConfig struct {
	SeatStateTransitions string `mapstructure:"seat_state_transitions"`
	SeatHoldCreated      string `mapstructure:"seat_hold_created"`
	SeatHoldConfirmed    string `mapstructure:"seat_hold_confirmed"`
	SeatHoldCancelled    string `mapstructure:"seat_hold_cancelled"`
	SeatHoldExpired      string `mapstructure:"seat_hold_expired"`
	BookingConfirmed     string `mapstructure:"booking_confirmed"`
}

// HoldConfig holds seat-hold behaviour settings
type HoldConfig struct {
	DurationMinutes    int           `mapstructure:"duration_minutes"`
	MaxSeatsPerHold    int           `mapstructure:"max_seats_per_hold"`
	OverlayTTL         time.Duration `mapstructure:"overlay_ttl"`
	ReconcilerEnabled  bool          `mapstructure:"reconciler_enabled"`
	ReconcilerInterval time.Duration `mapstructure:"reconciler_interval"`
}

// Duration returns the hold duration as a time.Duration
func (h *HoldConfig) Duration() time.Duration {
	return time.Duration(h.DurationMinutes) * time.Minute
}

// AuthConfig holds JWT settings for the HTTP surface
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional; env vars alone are enough. Its flat KEY=VALUE entries
	// are exported as env vars (real env vars win) so one lookup serves both.
	if err := v.ReadInConfig(); err == nil {
		for _, key := range v.AllKeys() {
			envKey := strings.ToUpper(key)
			if _, set := os.LookupEnv(envKey); !set {
				_ = os.Setenv(envKey, v.GetString(key))
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "booking-core")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8083)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ticketing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.tx_timeout", 30*time.Second)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.min_idle_conns", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "booking-core-seat-state")
	v.SetDefault("kafka.client_id", "booking-core")
	v.SetDefault("kafka.topics.seat_state_transitions", "seat-state-transitions")
	v.SetDefault("kafka.topics.seat_hold_created", "seat-hold-created")
	v.SetDefault("kafka.topics.seat_hold_confirmed", "seat-hold-confirmed")
	v.SetDefault("kafka.topics.seat_hold_cancelled", "seat-hold-cancelled")
	v.SetDefault("kafka.topics.seat_hold_expired", "seat-hold-expired")
	v.SetDefault("kafka.topics.booking_confirmed", "booking-confirmed")

	v.SetDefault("hold.duration_minutes", 10)
	v.SetDefault("hold.max_seats_per_hold", 10)
	v.SetDefault("hold.overlay_ttl", 600*time.Second)
	// Reconciler is the safety net for lost expiry notifications;
	// it stays on unless explicitly disabled.
	v.SetDefault("hold.reconciler_enabled", true)
	v.SetDefault("hold.reconciler_interval", 60*time.Second)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "booking-core")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "booking-core")
	v.SetDefault("otel.collector_addr", "localhost:4317")
	v.SetDefault("otel.sample_ratio", 1.0)
}

// Validate checks required configuration values
func (c *Config) Validate() error {
	if c.Hold.DurationMinutes <= 0 {
		return fmt.Errorf("hold.duration_minutes must be positive, got %d", c.Hold.DurationMinutes)
	}
	if c.Hold.MaxSeatsPerHold <= 0 {
		return fmt.Errorf("hold.max_seats_per_hold must be positive, got %d", c.Hold.MaxSeatsPerHold)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}
	return nil
}

// IsDevelopment returns true when running in the development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
