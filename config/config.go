package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// maxBackends caps the pool size; backends are full model processes and
// provisioning more than this is a configuration mistake.
const maxBackends = 30

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

// BackendPoolConfig describes the fixed pool: count backends on
// sequential ports starting at base_port, all on the same host.
type BackendPoolConfig struct {
	Host     string `mapstructure:"host"`
	BasePort int    `mapstructure:"base_port"`
	Count    int    `mapstructure:"count"`
}

type HealthCheckConfig struct {
	Interval         string `mapstructure:"interval"`
	Timeout          string `mapstructure:"timeout"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
}

type ProxyConfig struct {
	Timeout string `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	BackendPool BackendPoolConfig `mapstructure:"backend_pool"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Proxy       ProxyConfig       `mapstructure:"proxy"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":9000")
	viper.SetDefault("backend_pool.host", "127.0.0.1")
	viper.SetDefault("backend_pool.base_port", 8070)
	viper.SetDefault("backend_pool.count", 5)
	viper.SetDefault("health_check.interval", "30s")
	viper.SetDefault("health_check.timeout", "5s")
	viper.SetDefault("health_check.failure_threshold", 1)
	viper.SetDefault("proxy.timeout", "120s")
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.rps", 5)
	viper.SetDefault("rate_limit.burst", 10)
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// BackendURLs expands the pool configuration into the ordered backend
// address list; the order defines the round-robin rotation order.
func (c *Config) BackendURLs() []string {
	urls := make([]string, 0, c.BackendPool.Count)
	for i := 0; i < c.BackendPool.Count; i++ {
		urls = append(urls, fmt.Sprintf("http://%s:%d", c.BackendPool.Host, c.BackendPool.BasePort+i))
	}
	return urls
}

// HealthCheckInterval returns the parsed probe interval.
func (c *Config) HealthCheckInterval() (time.Duration, error) {
	return time.ParseDuration(c.HealthCheck.Interval)
}

// HealthCheckTimeout returns the parsed per-probe timeout.
func (c *Config) HealthCheckTimeout() (time.Duration, error) {
	return time.ParseDuration(c.HealthCheck.Timeout)
}

// ProxyTimeout returns the parsed per-attempt forwarding timeout.
func (c *Config) ProxyTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Proxy.Timeout)
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.BackendPool,
			validation.Required,
			validation.By(validateBackendPool),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(validateHealthCheck),
		),
		validation.Field(&c.Proxy,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProxyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.RateLimit,
			validation.By(validateRateLimit),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
	)
}

func validateBackendPool(value interface{}) error {
	bp, ok := value.(BackendPoolConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendPoolConfig")
	}

	if err := validation.ValidateStruct(&bp,
		validation.Field(&bp.Host,
			validation.Required,
			is.Host,
		),
		validation.Field(&bp.Count,
			validation.Required,
			validation.Min(1),
			validation.Max(maxBackends),
		),
		validation.Field(&bp.BasePort,
			validation.Required,
			validation.Min(1),
			validation.Max(65535),
		),
	); err != nil {
		return err
	}

	if bp.BasePort+bp.Count-1 > 65535 {
		return validation.NewError("validation_invalid_port_range",
			"backend port range exceeds 65535")
	}

	return nil
}

func validateHealthCheck(value interface{}) error {
	hc, ok := value.(HealthCheckConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
	}

	if err := validation.ValidateStruct(&hc,
		validation.Field(&hc.Interval,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&hc.Timeout,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&hc.FailureThreshold,
			validation.Required,
			validation.Min(1),
		),
	); err != nil {
		return err
	}

	interval, _ := time.ParseDuration(hc.Interval)
	timeout, _ := time.ParseDuration(hc.Timeout)
	if timeout >= interval {
		return validation.NewError("validation_invalid_probe_timeout",
			"probe timeout must be shorter than the check interval")
	}

	return nil
}

func validateRateLimit(value interface{}) error {
	rl, ok := value.(RateLimitConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RateLimitConfig")
	}

	if !rl.Enabled {
		return nil
	}

	return validation.ValidateStruct(&rl,
		validation.Field(&rl.RPS,
			validation.Required,
			validation.Min(0.0),
		),
		validation.Field(&rl.Burst,
			validation.Required,
			validation.Min(1),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}
