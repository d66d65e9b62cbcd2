package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/digitalaxis/axisgate/internal/gateway"
	"github.com/digitalaxis/axisgate/internal/hub"
	"github.com/digitalaxis/axisgate/internal/storage/user"
)

// EnvPrefix prefixes every environment override, e.g. AXISGATE_JWT_SECRET.
const EnvPrefix = "AXISGATE"

var ErrMissingJwtSecret = errors.New("jwt secret must be provided (apps.rest.jwt.secret or " + EnvPrefix + "_JWT_SECRET)")

type Config struct {
	Apps struct {
		LogLevel   string `yaml:"log_level"`
		LogToFiles bool   `yaml:"log_to_files"`
		Rest       struct {
			Port           int           `yaml:"port"`
			AllowedOrigins []string      `yaml:"allowed_origins"`
			AuthRateLimit  int           `yaml:"auth_rate_limit"`
			RequestTimeout time.Duration `yaml:"request_timeout"`
			Metrics        bool          `yaml:"metrics"`
			JWT            struct {
				Secret string        `yaml:"secret"`
				TTL    time.Duration `yaml:"ttl"`
			} `yaml:"jwt"`
		} `yaml:"rest"`
		Hub struct {
			Broker        string `yaml:"broker"`
			RedisAddress  string `yaml:"redis_address"`
			RedisPassword string `yaml:"redis_password"`
			RedisDB       int    `yaml:"redis_db"`
			RedisChannel  string `yaml:"redis_channel"`
			SendBuffer    int    `yaml:"send_buffer"`
		} `yaml:"hub"`
	} `yaml:"apps"`
	Storage struct {
		Users struct {
			Type        string `yaml:"type"`
			PostgresDSN string `yaml:"postgres_dsn"`
		} `yaml:"users"`
	} `yaml:"storage"`
	Model struct {
		PredictURL string        `yaml:"predict_url"`
		HealthURL  string        `yaml:"health_url"`
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries uint64        `yaml:"max_retries"`
	} `yaml:"model"`
}

// envOverrides lists the settings that can come from the environment.
// Empty values leave the file setting untouched.
type envOverrides struct {
	LogLevel        string   `envconfig:"LOG_LEVEL"`
	Port            int      `envconfig:"PORT"`
	AllowedOrigins  []string `envconfig:"ALLOWED_ORIGINS"`
	JwtSecret       string   `envconfig:"JWT_SECRET"`
	UsersStorage    string   `envconfig:"USERS_STORAGE"`
	PostgresDSN     string   `envconfig:"POSTGRES_DSN"`
	HubBroker       string   `envconfig:"HUB_BROKER"`
	RedisAddress    string   `envconfig:"REDIS_ADDRESS"`
	RedisPassword   string   `envconfig:"REDIS_PASSWORD"`
	ModelPredictURL string   `envconfig:"MODEL_PREDICT_URL"`
	ModelHealthURL  string   `envconfig:"MODEL_HEALTH_URL"`
}

// DefaultConfig returns the settings used for anything the file omits.
func DefaultConfig() *Config {
	var c Config
	c.Apps.LogLevel = "info"
	c.Apps.Rest.Port = 5000
	c.Apps.Rest.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	c.Apps.Rest.AuthRateLimit = 20
	c.Apps.Rest.RequestTimeout = 30 * time.Second
	c.Apps.Rest.Metrics = true
	c.Apps.Hub.Broker = hub.LocalBrokerType
	c.Apps.Hub.RedisAddress = "127.0.0.1:6379"
	c.Apps.Hub.RedisChannel = hub.DefaultRedisChannel
	c.Apps.Hub.SendBuffer = hub.DefaultSendBuffer
	c.Storage.Users.Type = user.InMemoryStorageType
	c.Model.PredictURL = gateway.DefaultPredictURL
	c.Model.HealthURL = gateway.DefaultHealthURL
	c.Model.Timeout = gateway.DefaultTimeout
	return &c
}

func ParseConfig(path string, logger *zap.Logger) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		logger.Error("Failed to open config file", zap.Error(err))
		return nil, fmt.Errorf("error opening file %w", err)
	}
	defer file.Close()

	config := DefaultConfig()
	err = yaml.NewDecoder(file).Decode(config)
	if err != nil {
		logger.Error("Failed to decode config file", zap.Error(err))
		return nil, fmt.Errorf("error decoding file %w", err)
	}

	return config, nil
}

// LoadConfig reads the file at path (defaults only when path is empty),
// applies environment overrides and validates the result.
func LoadConfig(path string, logger *zap.Logger) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		var err error
		config, err = ParseConfig(path, logger)
		if err != nil {
			return nil, err
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("error reading environment %w", err)
	}

	setString(&c.Apps.LogLevel, env.LogLevel)
	setString(&c.Apps.Rest.JWT.Secret, env.JwtSecret)
	setString(&c.Storage.Users.Type, env.UsersStorage)
	setString(&c.Storage.Users.PostgresDSN, env.PostgresDSN)
	setString(&c.Apps.Hub.Broker, env.HubBroker)
	setString(&c.Apps.Hub.RedisAddress, env.RedisAddress)
	setString(&c.Apps.Hub.RedisPassword, env.RedisPassword)
	setString(&c.Model.PredictURL, env.ModelPredictURL)
	setString(&c.Model.HealthURL, env.ModelHealthURL)
	if env.Port != 0 {
		c.Apps.Rest.Port = env.Port
	}
	if len(env.AllowedOrigins) > 0 {
		c.Apps.Rest.AllowedOrigins = env.AllowedOrigins
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Apps.Rest.JWT.Secret == "" {
		return ErrMissingJwtSecret
	}
	if c.Apps.Rest.Port <= 0 || c.Apps.Rest.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Apps.Rest.Port)
	}
	switch c.Storage.Users.Type {
	case user.InMemoryStorageType:
	case user.PostgresStorageType:
		if c.Storage.Users.PostgresDSN == "" {
			return errors.New("postgres users storage requires storage.users.postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown users storage type %q", c.Storage.Users.Type)
	}
	switch c.Apps.Hub.Broker {
	case hub.LocalBrokerType, hub.RedisBrokerType:
	default:
		return fmt.Errorf("unknown hub broker %q", c.Apps.Hub.Broker)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
