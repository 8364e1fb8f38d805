package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
// Nested keys are separated by a double underscore, e.g. APICAPTURE_SERVER__PORT.
const EnvPrefix = "APICAPTURE_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      *DatabaseConfig      `koanf:"database"`
	Capture       CaptureConfig        `koanf:"capture"`
	Observability *ObservabilityConfig `koanf:"observability"`
	Storage       *StorageConfig       `koanf:"storage"`
	Batcher       *BatcherConfig       `koanf:"batcher"`
	Proxy         ProxyConfig          `koanf:"proxy"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout"`
	WriteTimeout       int      `koanf:"write_timeout"`
	IdleTimeout        int      `koanf:"idle_timeout"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time"`
}

// DSN returns a pgx connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// CaptureConfig tunes the interceptor and the in-process hops behind it.
type CaptureConfig struct {
	SinkBaseURL   string `koanf:"sink_base_url" validate:"omitempty,url"`
	MaxBodyBytes  int    `koanf:"max_body_bytes" validate:"gte=0"`
	WindowBuffer  int    `koanf:"window_buffer" validate:"gte=0"`
	ChannelBuffer int    `koanf:"channel_buffer" validate:"gte=0"`
	RecentSize    int    `koanf:"recent_size" validate:"gte=0"`
	// ForwardToSink registers an http output pointed at SinkBaseURL on boot.
	ForwardToSink bool `koanf:"forward_to_sink"`
}

type StorageConfig struct {
	O3 *O3Config `koanf:"o3"`
}

// O3Config is an S3-compatible endpoint (Akave O3, MinIO, AWS).
type O3Config struct {
	Endpoint  string `koanf:"endpoint" json:"endpoint"`
	Bucket    string `koanf:"bucket" json:"bucket"`
	AccessKey string `koanf:"access_key" json:"access_key"`
	SecretKey string `koanf:"secret_key" json:"secret_key"`
	Region    string `koanf:"region" json:"region"`
}

type BatcherConfig struct {
	MaxBatchSize  int    `koanf:"max_batch_size"`
	FlushInterval string `koanf:"flush_interval"`
}

// ProxyConfig maps a name to an upstream base URL; each one is served under /proxy/<name>/.
type ProxyConfig struct {
	Targets map[string]string `koanf:"targets" validate:"dive,keys,required,endkeys,url"`
}

// LoadConfig loads the configuration from environment variables using koanf.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Observability is a pointer so a missing section can be told apart from a zero one.
	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	mainConfig.Observability.ServiceName = "apicapture"
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}
	return mainConfig, nil
}

// IsDevelopment reports whether the process runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Primary.Env == "development"
}
