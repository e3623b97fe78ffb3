package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location relative to the working dir.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string `yaml:"port"`
	LogLevel          string `yaml:"logLevel"`
	DatabaseURL       string `yaml:"databaseURL"`
	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	SessionSecret     string `yaml:"sessionSecret"`
	SessionTTLMinutes int    `yaml:"sessionTTLMinutes"`
	MinioEndpoint     string `yaml:"minioEndpoint"`
	MinioAccessKey    string `yaml:"minioAccessKey"`
	MinioSecretKey    string `yaml:"minioSecretKey"`
	MinioBucket       string `yaml:"minioBucket"`
	MinioUseSSL       bool   `yaml:"minioUseSSL"`
	PublicBaseURL     string `yaml:"publicBaseURL"`
	EpayBaseURL       string `yaml:"epayBaseURL"`
	EpaySecretKey     string `yaml:"epaySecretKey"`
	EpayReturnURL     string `yaml:"epayReturnURL"`
	EpayWebsiteURL    string `yaml:"epayWebsiteURL"`

	// Checkout initiations allowed per user per window. Zero disables
	// limiting; requires redisAddr when enabled.
	PaymentRateLimit         int `yaml:"paymentRateLimit"`
	PaymentRateWindowSeconds int `yaml:"paymentRateWindowSeconds"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("NOVELLA_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("NOVELLA_SESSION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTLMinutes = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("NOVELLA_PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("EPAY_BASE_URL"); v != "" {
		cfg.EpayBaseURL = v
	}
	if v := os.Getenv("EPAY_SECRET_KEY"); v != "" {
		cfg.EpaySecretKey = v
	}
	if v := os.Getenv("EPAY_RETURN_URL"); v != "" {
		cfg.EpayReturnURL = v
	}
	if v := os.Getenv("EPAY_WEBSITE_URL"); v != "" {
		cfg.EpayWebsiteURL = v
	}
	if v := os.Getenv("NOVELLA_PAYMENT_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PaymentRateLimit = n
		}
	}
	if cfg.SessionTTLMinutes <= 0 {
		cfg.SessionTTLMinutes = 24 * 60
	}
	if cfg.PaymentRateLimit > 0 && cfg.PaymentRateWindowSeconds <= 0 {
		cfg.PaymentRateWindowSeconds = 60
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validateConfig checks required fields. The payment gateway settings are
// optional: when absent the service runs with checkout disabled and reports
// 503 on initiate.
func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.SessionSecret == "" {
		return errors.New("config: sessionSecret is required (set in config.yaml or NOVELLA_SESSION_SECRET)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.EpayBaseURL != "" && cfg.EpaySecretKey == "" {
		return errors.New("config: epaySecretKey is required when epayBaseURL is set")
	}
	if cfg.PaymentRateLimit > 0 && cfg.RedisAddr == "" {
		return errors.New("config: paymentRateLimit requires redisAddr")
	}
	return nil
}
