package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Admission type column names seen across dataset exports.
const (
	AdmissionTypeIDColumn = "admission_type_id"
	AdmissionTypeColumn   = "admission_type"
)

// Age column encodings.
const (
	AgeFormatBracket = "bracket"
	AgeFormatYears   = "years"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	DatasetPath         string   `mapstructure:"DATASET_PATH"`
	AdmissionTypeColumn string   `mapstructure:"ADMISSION_TYPE_COLUMN"`
	AgeFormat           string   `mapstructure:"AGE_FORMAT"`
	NotReadmittedValue  string   `mapstructure:"NOT_READMITTED_VALUE"`
	StrictFilters       bool     `mapstructure:"STRICT_FILTERS"`
	PageSize            int      `mapstructure:"PAGE_SIZE"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int      `mapstructure:"RATE_LIMIT_BURST"`
	CacheMaxAge         int      `mapstructure:"CACHE_MAX_AGE"`
	MetricsEnabled      bool     `mapstructure:"METRICS_ENABLED"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8050")
	v.SetDefault("ENV", "development")
	v.SetDefault("ADMISSION_TYPE_COLUMN", AdmissionTypeIDColumn)
	v.SetDefault("AGE_FORMAT", AgeFormatBracket)
	v.SetDefault("NOT_READMITTED_VALUE", "NO")
	v.SetDefault("STRICT_FILTERS", false)
	v.SetDefault("PAGE_SIZE", 8)
	v.SetDefault("CORS_ORIGINS", "http://localhost:8050")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("CACHE_MAX_AGE", 60)
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATASET_PATH")
	v.BindEnv("ADMISSION_TYPE_COLUMN")
	v.BindEnv("AGE_FORMAT")
	v.BindEnv("NOT_READMITTED_VALUE")
	v.BindEnv("STRICT_FILTERS")
	v.BindEnv("PAGE_SIZE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("CACHE_MAX_AGE")
	v.BindEnv("METRICS_ENABLED")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatasetPath == "" {
		return nil, fmt.Errorf("DATASET_PATH is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development), console logging enabled")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the dataset layout settings are ones the loader
// understands. The admission type column is a deployment choice and is never
// detected from the file header.
func (c *Config) Validate() error {
	if c.AdmissionTypeColumn != AdmissionTypeIDColumn && c.AdmissionTypeColumn != AdmissionTypeColumn {
		return fmt.Errorf("ADMISSION_TYPE_COLUMN must be %q or %q, got %q",
			AdmissionTypeIDColumn, AdmissionTypeColumn, c.AdmissionTypeColumn)
	}
	if c.AgeFormat != AgeFormatBracket && c.AgeFormat != AgeFormatYears {
		return fmt.Errorf("AGE_FORMAT must be %q or %q, got %q", AgeFormatBracket, AgeFormatYears, c.AgeFormat)
	}
	if strings.TrimSpace(c.NotReadmittedValue) == "" {
		return fmt.Errorf("NOT_READMITTED_VALUE must not be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.CacheMaxAge < 0 {
		return fmt.Errorf("CACHE_MAX_AGE must not be negative, got %d", c.CacheMaxAge)
	}
	return nil
}
