/**
 * @description
 * Configuration for the RAVITO API and scheduler processes. Values come from the
 * environment (optionally an .env file) through Viper.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds the settings of the API process.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix         string `mapstructure:"REDIS_KEY_PREFIX"`
	SessionCacheTTLMinutes int    `mapstructure:"SESSION_CACHE_TTL_MINUTES"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	EventsExchange         string `mapstructure:"EVENTS_EXCHANGE"`
	NotificationQueue      string `mapstructure:"NOTIFICATION_QUEUE"`
	JWTSecret              string `mapstructure:"JWT_SECRET"`
	JWTAudience            string `mapstructure:"JWT_AUDIENCE"`
	InternalAPIKey         string `mapstructure:"INTERNAL_API_KEY"`
	VAPIDPublicKey         string `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey        string `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject           string `mapstructure:"VAPID_SUBJECT"`
	BusinessTimezone       string `mapstructure:"BUSINESS_TIMEZONE"`
	RateLimitPerMinute     int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins         string `mapstructure:"ALLOWED_ORIGINS"`
}

// SessionCacheTTL returns the session cache lifetime.
func (c Config) SessionCacheTTL() time.Duration {
	return time.Duration(c.SessionCacheTTLMinutes) * time.Minute
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SchedulerConfig holds the settings of the scheduler process.
type SchedulerConfig struct {
	APIBaseURL                 string `mapstructure:"API_BASE_URL"`
	InternalAPIKey             string `mapstructure:"INTERNAL_API_KEY"`
	CommissionSnapshotSchedule string `mapstructure:"COMMISSION_SNAPSHOT_SCHEDULE"`
	CommissionReminderSchedule string `mapstructure:"COMMISSION_REMINDER_SCHEDULE"`
	BusinessTimezone           string `mapstructure:"BUSINESS_TIMEZONE"`
}

// LoadConfig reads the API configuration. path is searched for an optional .env file.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "ravito")
	viper.SetDefault("SESSION_CACHE_TTL_MINUTES", 1440)
	viper.SetDefault("EVENTS_EXCHANGE", "ravito.events")
	viper.SetDefault("NOTIFICATION_QUEUE", "ravito.notifications.dispatch")
	viper.SetDefault("JWT_AUDIENCE", "authenticated")
	viper.SetDefault("VAPID_SUBJECT", "mailto:support@ravito.ci")
	viper.SetDefault("BUSINESS_TIMEZONE", "Africa/Abidjan")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("ALLOWED_ORIGINS", "*")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("SESSION_CACHE_TTL_MINUTES")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("NOTIFICATION_QUEUE")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("VAPID_PUBLIC_KEY")
	_ = viper.BindEnv("VAPID_PRIVATE_KEY")
	_ = viper.BindEnv("VAPID_SUBJECT")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("ALLOWED_ORIGINS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)

	if config.DatabaseURL == "" {
		return config, fmt.Errorf("DATABASE_URL is required")
	}
	if config.JWTSecret == "" {
		return config, fmt.Errorf("JWT_SECRET is required")
	}
	if config.InternalAPIKey == "" {
		log.Printf("level=warn component=config msg=\"INTERNAL_API_KEY not set; internal routes will reject every call\"")
	}
	if config.SessionCacheTTLMinutes <= 0 {
		config.SessionCacheTTLMinutes = 1440
	}
	if config.RateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative rate limit configured; disabling\" value=%d", config.RateLimitPerMinute)
		config.RateLimitPerMinute = 0
	}
	if _, tzErr := time.LoadLocation(config.BusinessTimezone); tzErr != nil {
		return config, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", config.BusinessTimezone, tzErr)
	}

	return
}

// LoadSchedulerConfig reads the scheduler configuration from the environment.
func LoadSchedulerConfig() (*SchedulerConfig, error) {
	viper.SetDefault("COMMISSION_SNAPSHOT_SCHEDULE", "0 3 1 * *") // At 03:00 on day-of-month 1.
	viper.SetDefault("COMMISSION_REMINDER_SCHEDULE", "0 8 5 * *") // At 08:00 on day-of-month 5.
	viper.SetDefault("BUSINESS_TIMEZONE", "Africa/Abidjan")
	viper.AutomaticEnv()

	_ = viper.BindEnv("API_BASE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("COMMISSION_SNAPSHOT_SCHEDULE")
	_ = viper.BindEnv("COMMISSION_REMINDER_SCHEDULE")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")

	var config SchedulerConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.APIBaseURL = strings.TrimRight(strings.TrimSpace(config.APIBaseURL), "/")
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	if config.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	if config.InternalAPIKey == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY is required")
	}
	if _, err := time.LoadLocation(config.BusinessTimezone); err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", config.BusinessTimezone, err)
	}

	return &config, nil
}
