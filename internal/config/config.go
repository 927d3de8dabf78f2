package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	DatabaseURL         string   `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32    `mapstructure:"DB_MIN_CONNS"`
	ClassifierURL       string   `mapstructure:"CLASSIFIER_URL"`
	ClassifierTimeoutMS int      `mapstructure:"CLASSIFIER_TIMEOUT_MS"`
	AuthIssuer          string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int      `mapstructure:"RATE_LIMIT_BURST"`
	BusinessHoursStart  int      `mapstructure:"BUSINESS_HOURS_START"`
	BusinessHoursEnd    int      `mapstructure:"BUSINESS_HOURS_END"`
	QuietReleaseHour    int      `mapstructure:"QUIET_RELEASE_HOUR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CLASSIFIER_TIMEOUT_MS", 5000)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BUSINESS_HOURS_START", 8)
	v.SetDefault("BUSINESS_HOURS_END", 18)
	v.SetDefault("QUIET_RELEASE_HOUR", 8)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CLASSIFIER_URL")
	v.BindEnv("CLASSIFIER_TIMEOUT_MS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("BUSINESS_HOURS_START")
	v.BindEnv("BUSINESS_HOURS_END")
	v.BindEnv("QUIET_RELEASE_HOUR")

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

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get staff access.")
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

// Validate checks that the configuration is safe to run. Outside development
// an AUTH_ISSUER must be set so real JWT authentication is enforced, and the
// business-hours window must be a sane half-open hour range.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must be set when ENV is %q; refusing to start without authentication", c.Env)
	}
	if c.BusinessHoursStart < 0 || c.BusinessHoursStart > 23 {
		return fmt.Errorf("BUSINESS_HOURS_START must be an hour 0-23, got %d", c.BusinessHoursStart)
	}
	if c.BusinessHoursEnd < 1 || c.BusinessHoursEnd > 24 {
		return fmt.Errorf("BUSINESS_HOURS_END must be an hour 1-24, got %d", c.BusinessHoursEnd)
	}
	if c.BusinessHoursEnd <= c.BusinessHoursStart {
		return fmt.Errorf("BUSINESS_HOURS_END (%d) must be after BUSINESS_HOURS_START (%d)",
			c.BusinessHoursEnd, c.BusinessHoursStart)
	}
	if c.QuietReleaseHour < 0 || c.QuietReleaseHour > 23 {
		return fmt.Errorf("QUIET_RELEASE_HOUR must be an hour 0-23, got %d", c.QuietReleaseHour)
	}
	if c.ClassifierTimeoutMS <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT_MS must be positive, got %d", c.ClassifierTimeoutMS)
	}
	return nil
}
