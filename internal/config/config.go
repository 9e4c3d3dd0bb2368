// Package config loads the edge configuration from defaults, an optional YAML file and
// AGENTDESK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override. "__" separates nesting levels:
	// AGENTDESK_PROVIDER__GOTRUE__JWT_SECRET sets provider.gotrue.jwt_secret.
	EnvPrefix = "AGENTDESK_"
	// PathEnvVar names the optional YAML config file.
	PathEnvVar = "AGENTDESK_CONFIG"
)

const (
	ProviderGoTrue = "gotrue"
	ProviderKratos = "kratos"

	SinkLog      = "log"
	SinkRedis    = "redis"
	SinkPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Provider ProviderConfig `koanf:"provider"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Activity ActivityConfig `koanf:"activity"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Addr               string        `koanf:"addr" validate:"required"`
	AdminAddr          string        `koanf:"admin_addr" validate:"required"`
	GRPCHealthAddr     string        `koanf:"grpc_health_addr"`
	TrustedProxies     []string      `koanf:"trusted_proxies" validate:"dive,cidr"`
	ReadHeaderTimeout  time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ReadTimeout        time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout       time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout        time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimitBurst     int           `koanf:"rate_limit_burst" validate:"gte=0"`
	RateLimitPerSecond int           `koanf:"rate_limit_per_second" validate:"gte=0"`
	MaxBodyBytes       int64         `koanf:"max_body_bytes" validate:"gt=0"`
	SecureCookies      bool          `koanf:"secure_cookies"`
}

type UpstreamConfig struct {
	URL string `koanf:"url" validate:"required,url"`
}

type ProviderConfig struct {
	Kind           string        `koanf:"kind" validate:"oneof=gotrue kratos"`
	ResolveTimeout time.Duration `koanf:"resolve_timeout" validate:"gt=0"`
	GoTrue         GoTrueConfig  `koanf:"gotrue"`
	Kratos         KratosConfig  `koanf:"kratos"`
	Breaker        BreakerConfig `koanf:"breaker"`
}

type GoTrueConfig struct {
	URL           string `koanf:"url" validate:"omitempty,url"`
	AnonKey       string `koanf:"anon_key"`
	JWTSecret     string `koanf:"jwt_secret" validate:"omitempty,min=32"`
	AccessCookie  string `koanf:"access_cookie"`
	RefreshCookie string `koanf:"refresh_cookie"`
	CookieDomain  string `koanf:"cookie_domain"`
}

type KratosConfig struct {
	PublicURL  string `koanf:"public_url" validate:"omitempty,url"`
	CookieName string `koanf:"cookie_name"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gt=0"`
	OpenTimeout      time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gt=0"`
	MaxIdleConns int    `koanf:"max_idle_conns" validate:"gte=0"`
}

type RedisConfig struct {
	URL    string `koanf:"url"`
	Stream string `koanf:"stream"`
	MaxLen int64  `koanf:"max_len" validate:"gte=0"`
}

type ActivityConfig struct {
	Sinks        []string      `koanf:"sinks" validate:"dive,oneof=log redis postgres"`
	QueueSize    int           `koanf:"queue_size" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration applied before file and environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			AdminAddr:          ":9100",
			GRPCHealthAddr:     ":9090",
			ReadHeaderTimeout:  5 * time.Second,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       30 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			RateLimitBurst:     50,
			RateLimitPerSecond: 25,
			MaxBodyBytes:       10 << 20,
			SecureCookies:      true,
		},
		Upstream: UpstreamConfig{URL: "http://127.0.0.1:3000"},
		Provider: ProviderConfig{
			Kind:           ProviderGoTrue,
			ResolveTimeout: 3 * time.Second,
			GoTrue: GoTrueConfig{
				AccessCookie:  "sb-access-token",
				RefreshCookie: "sb-refresh-token",
			},
			Kratos: KratosConfig{CookieName: "ory_kratos_session"},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns: 50,
			MaxIdleConns: 25,
		},
		Redis: RedisConfig{Stream: "agentdesk:activity", MaxLen: 100000},
		Activity: ActivityConfig{
			Sinks:        []string{SinkLog},
			QueueSize:    1024,
			WriteTimeout: 2 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration using the file named by AGENTDESK_CONFIG, if any.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(PathEnvVar))
}

// LoadFile layers defaults, the YAML file at path (skipped when empty) and the environment.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitListFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps AGENTDESK_PROVIDER__GOTRUE__URL to provider.gotrue.url.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

var listPaths = []string{"activity.sinks", "server.trusted_proxies"}

// splitListFields turns comma separated environment values into slices.
func splitListFields(k *koanf.Koanf) error {
	for _, path := range listPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the provider and sink combinations.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	var errs []error
	switch c.Provider.Kind {
	case ProviderGoTrue:
		if c.Provider.GoTrue.URL == "" {
			errs = append(errs, errors.New("provider.gotrue.url is required for the gotrue provider"))
		}
	case ProviderKratos:
		if c.Provider.Kratos.PublicURL == "" {
			errs = append(errs, errors.New("provider.kratos.public_url is required for the kratos provider"))
		}
	}
	if c.HasSink(SinkRedis) && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when the redis activity sink is enabled"))
	}
	if c.Server.GRPCHealthAddr != "" && c.Server.GRPCHealthAddr == c.Server.Addr {
		errs = append(errs, errors.New("server.grpc_health_addr must differ from server.addr"))
	}
	if c.Server.AdminAddr == c.Server.Addr || c.Server.AdminAddr == c.Server.GRPCHealthAddr {
		errs = append(errs, errors.New("server.admin_addr must differ from server.addr and server.grpc_health_addr"))
	}
	return errors.Join(errs...)
}

// HasSink reports whether the named activity sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Activity.Sinks {
		if s == name {
			return true
		}
	}
	return false
}
