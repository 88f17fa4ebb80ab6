package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Gemini   GeminiConfig
	Search   SearchConfig
	Events   EventsConfig
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`
	MaxFiles        int           `mapstructure:"max_files"`
	PipelineTimeout time.Duration `mapstructure:"pipeline_timeout"`
	Concurrency     int           `mapstructure:"concurrency"`
	// JWTSecret enables bearer auth on mutating routes when set.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // "local" or "supabase"
	LocalDir      string `mapstructure:"local_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	SupabaseURL   string `mapstructure:"supabase_url"`
	SupabaseKey   string `mapstructure:"supabase_key"`
	Bucket        string `mapstructure:"bucket"`
}

type GeminiConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

type SearchConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	EngineID      string        `mapstructure:"engine_id"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	MaxResults    int           `mapstructure:"max_results"`
}

type EventsConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// Load reads configuration from CATALOG_* environment variables, an optional
// config.yaml and an optional .env file, in that order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// unprefixed names common on hosting platforms
	_ = v.BindEnv("server.port", "CATALOG_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "CATALOG_DATABASE_URL", "DATABASE_URL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if config.Gemini.APIKey == "" {
		log.Warn("CATALOG_GEMINI_API_KEY is not set; uploads will be saved without extracted fields")
	}
	if config.Search.APIKey == "" || config.Search.EngineID == "" {
		log.Warn("search credentials are not set; prices will be Price TBD")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.max_files", 20)
	v.SetDefault("server.pipeline_timeout", "60s")
	v.SetDefault("server.concurrency", 4)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("database.url", "")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./uploads")
	v.SetDefault("storage.public_base_url", "http://localhost:8080/uploads")
	v.SetDefault("storage.supabase_url", "")
	v.SetDefault("storage.supabase_key", "")
	v.SetDefault("storage.bucket", "product-images")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.timeout", "30s")
	v.SetDefault("gemini.rate_per_second", 2.0)

	v.SetDefault("search.api_key", "")
	v.SetDefault("search.engine_id", "")
	v.SetDefault("search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.timeout", "10s")
	v.SetDefault("search.rate_per_second", 1.0)
	v.SetDefault("search.max_results", 5)

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "catalog")
	v.SetDefault("events.routing_key", "product.created")
}

func validate(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("database URL is required (set CATALOG_DATABASE_URL or DATABASE_URL)")
	}

	switch config.Storage.Backend {
	case "local":
		if config.Storage.LocalDir == "" {
			return fmt.Errorf("storage local_dir is required for the local backend")
		}
	case "supabase":
		if config.Storage.SupabaseURL == "" || config.Storage.SupabaseKey == "" {
			return fmt.Errorf("supabase url and key are required when storage backend is 'supabase'")
		}
	default:
		return fmt.Errorf("storage backend must be 'local' or 'supabase', got: %s", config.Storage.Backend)
	}

	if config.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got: %d", config.Server.MaxUploadMB)
	}
	if config.Server.MaxFiles <= 0 {
		return fmt.Errorf("max files per upload must be positive, got: %d", config.Server.MaxFiles)
	}
	if config.Server.PipelineTimeout <= 0 {
		return fmt.Errorf("pipeline timeout must be positive")
	}

	return nil
}

// MaxUploadBytes is the per-file upload limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
