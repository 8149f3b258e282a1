// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEncryptionKey is used when ENCRYPTION_KEY is unset. It is only
// acceptable outside production.
const DefaultEncryptionKey = "your-32-character-secret-key-here!!"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port              string `mapstructure:"PORT"`
	Env               string `mapstructure:"APP_ENV"`
	MongoURI          string `mapstructure:"MONGODB_URI"`
	MongoDatabase     string `mapstructure:"MONGODB_DATABASE"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	AllowedOrigins    string `mapstructure:"ALLOWED_ORIGINS"`
	FrontendURL       string `mapstructure:"FRONTEND_URL"`
	FeatureFlags      string `mapstructure:"FEATURE_FLAGS"`
	FirebaseProjectID string `mapstructure:"FIREBASE_PROJECT_ID"`

	StripeSecretKey      string `mapstructure:"STRIPE_SECRET_KEY"`
	StripePublishableKey string `mapstructure:"STRIPE_PUBLISHABLE_KEY"`

	EncryptionKey string `mapstructure:"ENCRYPTION_KEY"`
	DecryptPolicy string `mapstructure:"DECRYPT_POLICY"`

	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string `mapstructure:"GEMINI_MODEL"`

	RateLimitWindowMS    int `mapstructure:"RATE_LIMIT_WINDOW_MS"`
	RateLimitMaxRequests int `mapstructure:"RATE_LIMIT_MAX_REQUESTS"`

	ImageStore           string `mapstructure:"IMAGE_STORE"`
	ImageUploadDir       string `mapstructure:"IMAGE_UPLOAD_DIR"`
	ImagePublicURL       string `mapstructure:"IMAGE_PUBLIC_URL"`
	ImageMaxUploadSizeMB int    `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`
	S3Bucket             string `mapstructure:"S3_BUCKET"`
	S3Region             string `mapstructure:"S3_REGION"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars alone are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			log.Printf("No profile-specific config 'config.%s.yml' found, using environment only", env)
		} else {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "4000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("MONGODB_URI", "")
	viper.SetDefault("MONGODB_DATABASE", "restjam")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FRONTEND_URL", "http://localhost:5173")
	viper.SetDefault("FEATURE_FLAGS", "ai_search=on")
	viper.SetDefault("FIREBASE_PROJECT_ID", "")
	viper.SetDefault("STRIPE_SECRET_KEY", "")
	viper.SetDefault("STRIPE_PUBLISHABLE_KEY", "")
	viper.SetDefault("ENCRYPTION_KEY", "")
	viper.SetDefault("DECRYPT_POLICY", "passthrough")
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	viper.SetDefault("RATE_LIMIT_WINDOW_MS", 15*60*1000)
	viper.SetDefault("RATE_LIMIT_MAX_REQUESTS", 100)
	viper.SetDefault("IMAGE_STORE", "local")
	viper.SetDefault("IMAGE_UPLOAD_DIR", "/tmp/restjam/uploads")
	viper.SetDefault("IMAGE_PUBLIC_URL", "/media")
	viper.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 5)
	viper.SetDefault("S3_BUCKET", "")
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DecryptPolicy = strings.ToLower(strings.TrimSpace(c.DecryptPolicy))
	c.ImageStore = strings.ToLower(strings.TrimSpace(c.ImageStore))
	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")
}

// IsProduction reports whether the app runs with a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// MissingRequired lists the required environment variables that are not set.
func (c *Config) MissingRequired() []string {
	var missing []string
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}
	if c.MongoURI == "" {
		missing = append(missing, "MONGODB_URI")
	}
	if c.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	return missing
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.RateLimitWindowMS <= 0 {
		return errors.New("RATE_LIMIT_WINDOW_MS must be positive")
	}
	if c.RateLimitMaxRequests <= 0 {
		return errors.New("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	switch c.DecryptPolicy {
	case "", "passthrough", "strict":
	default:
		return fmt.Errorf("DECRYPT_POLICY must be 'passthrough' or 'strict', got %q", c.DecryptPolicy)
	}
	switch c.ImageStore {
	case "", "local":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when IMAGE_STORE is 's3'")
		}
	default:
		return fmt.Errorf("IMAGE_STORE must be 'local' or 's3', got %q", c.ImageStore)
	}

	missing := c.MissingRequired()

	if c.IsProduction() {
		if len(missing) > 0 {
			return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
		}
		if c.EncryptionKey == "" || c.EncryptionKey == DefaultEncryptionKey {
			return errors.New("ENCRYPTION_KEY must be set to a non-default value in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		if len(missing) > 0 {
			log.Printf("WARNING: missing environment variables: %s. Some features will be unavailable.", strings.Join(missing, ", "))
		}
		if c.EncryptionKey == "" {
			log.Println("WARNING: ENCRYPTION_KEY is not set. Using the development fallback key.")
		}
	}

	return nil
}

// EffectiveEncryptionKey returns the configured key or the development fallback.
func (c *Config) EffectiveEncryptionKey() string {
	if c.EncryptionKey == "" {
		return DefaultEncryptionKey
	}
	return c.EncryptionKey
}
