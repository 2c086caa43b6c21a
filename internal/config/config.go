// Package config loads service settings from AKWABA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "AKWABA"

// Config holds all configuration for the KYC API.
type Config struct {
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	GRPCAddr        string        `mapstructure:"GRPC_ADDR"`
	PGDSN           string        `mapstructure:"PG_DSN"`
	AuthSecret      string        `mapstructure:"AUTH_SECRET"`
	DevTokens       bool          `mapstructure:"DEV_TOKENS"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"`
	SealKey         string        `mapstructure:"SEAL_KEY"`
	AMQPURL         string        `mapstructure:"AMQP_URL"`
	AMQPExchange    string        `mapstructure:"AMQP_EXCHANGE"`
	S3Bucket        string        `mapstructure:"S3_BUCKET"`
	S3Region        string        `mapstructure:"S3_REGION"`
	S3Endpoint      string        `mapstructure:"S3_ENDPOINT"`
	S3PublicBaseURL string        `mapstructure:"S3_PUBLIC_BASE_URL"`
	S3AccessKey     string        `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey     string        `mapstructure:"S3_SECRET_KEY"`
	UploadTTL       time.Duration `mapstructure:"UPLOAD_TTL"`
	BacklogSchedule string        `mapstructure:"BACKLOG_SCHEDULE"`
	RateBurst       int           `mapstructure:"RATE_BURST"`
	RatePerSec      float64       `mapstructure:"RATE_PER_SEC"`
	CORSOrigins     string        `mapstructure:"CORS_ORIGINS"`
	MaxBodyBytes    int64         `mapstructure:"MAX_BODY_BYTES"`
	Version         string        `mapstructure:"VERSION"`
	Commit          string        `mapstructure:"COMMIT"`
}

var defaults = map[string]any{
	"HTTP_ADDR":          ":8080",
	"GRPC_ADDR":          ":9090",
	"PG_DSN":             "",
	"AUTH_SECRET":        "",
	"DEV_TOKENS":         false,
	"TOKEN_TTL":          "1h",
	"SEAL_KEY":           "",
	"AMQP_URL":           "",
	"AMQP_EXCHANGE":      "kyc_events",
	"S3_BUCKET":          "",
	"S3_REGION":          "",
	"S3_ENDPOINT":        "",
	"S3_PUBLIC_BASE_URL": "",
	"S3_ACCESS_KEY":      "",
	"S3_SECRET_KEY":      "",
	"UPLOAD_TTL":         "10m",
	"BACKLOG_SCHEDULE":   "@every 1m",
	"RATE_BURST":         20,
	"RATE_PER_SEC":       10.0,
	"CORS_ORIGINS":       "*",
	"MAX_BODY_BYTES":     1 << 20,
	"VERSION":            "dev",
	"COMMIT":             "none",
}

// ClientConfig holds the settings kycctl needs to talk to the API.
type ClientConfig struct {
	APIURL     string        `mapstructure:"API_URL"`
	Token      string        `mapstructure:"TOKEN"`
	RedisURL   string        `mapstructure:"REDIS_URL"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`
}

var clientDefaults = map[string]any{
	"API_URL":     "http://localhost:8080",
	"TOKEN":       "",
	"REDIS_URL":   "",
	"SESSION_TTL": "24h",
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := unmarshalEnv(defaults, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads the client settings. None of them is required.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := unmarshalEnv(clientDefaults, &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("config: AKWABA_SESSION_TTL must be positive")
	}
	return &cfg, nil
}

func unmarshalEnv(defs map[string]any, out any) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for key, val := range defs {
		v.SetDefault(key, val)
		// Bind explicitly so Unmarshal sees env-only keys.
		_ = v.BindEnv(key)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AuthSecret) == "" {
		errs = append(errs, errors.New("config: AKWABA_AUTH_SECRET is required"))
	}
	if c.PGDSN != "" && strings.TrimSpace(c.SealKey) == "" {
		errs = append(errs, errors.New("config: AKWABA_SEAL_KEY is required when AKWABA_PG_DSN is set"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("config: AKWABA_TOKEN_TTL must be positive"))
	}
	if c.RateBurst < 0 || c.RatePerSec < 0 {
		errs = append(errs, errors.New("config: rate limits must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("config: AKWABA_MAX_BODY_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
