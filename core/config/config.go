package config

import (
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type LoggerConfig struct {
	Level string
}

type OAuthAPIConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TenantID     string
}

type CalendarConfig struct {
	Timezone              string
	AutomationWebhookURL  string
	AutomationConcurrency int
}

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Logger      LoggerConfig
	GoogleAPI   OAuthAPIConfig
	OutlookAPI  OAuthAPIConfig
	CalendlyAPI OAuthAPIConfig
	Calendar    CalendarConfig
}

var (
	mu       sync.RWMutex
	instance *Config
)

func Load() (*Config, error) {
	// .env is optional; real deployments use process env.
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 7070)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_NAME", "calendar_engine")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("OUTLOOK_TENANT_ID", "common")
	viper.SetDefault("CALENDAR_TIMEZONE", "UTC")
	viper.SetDefault("AUTOMATION_CONCURRENCY", 5)

	cfg := &Config{
		Server: ServerConfig{
			Host:    viper.GetString("SERVER_HOST"),
			Port:    viper.GetInt("SERVER_PORT"),
			BaseURL: viper.GetString("SERVER_BASE_URL"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetInt("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Logger: LoggerConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
		GoogleAPI: OAuthAPIConfig{
			ClientID:     viper.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: viper.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURI:  viper.GetString("GOOGLE_REDIRECT_URI"),
		},
		OutlookAPI: OAuthAPIConfig{
			ClientID:     viper.GetString("OUTLOOK_CLIENT_ID"),
			ClientSecret: viper.GetString("OUTLOOK_CLIENT_SECRET"),
			RedirectURI:  viper.GetString("OUTLOOK_REDIRECT_URI"),
			TenantID:     viper.GetString("OUTLOOK_TENANT_ID"),
		},
		CalendlyAPI: OAuthAPIConfig{
			ClientID:     viper.GetString("CALENDLY_CLIENT_ID"),
			ClientSecret: viper.GetString("CALENDLY_CLIENT_SECRET"),
			RedirectURI:  viper.GetString("CALENDLY_REDIRECT_URI"),
		},
		Calendar: CalendarConfig{
			Timezone:              viper.GetString("CALENDAR_TIMEZONE"),
			AutomationWebhookURL:  viper.GetString("AUTOMATION_WEBHOOK_URL"),
			AutomationConcurrency: viper.GetInt("AUTOMATION_CONCURRENCY"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	mu.Lock()
	instance = cfg
	mu.Unlock()

	return cfg, nil
}

// Get returns the loaded config. Panics if Load has not run.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("config: Get called before Load")
	}
	return instance
}

// GetSafe returns the loaded config, or false when Load has not run.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return nil, false
	}
	return instance, true
}

// SetForTesting replaces the loaded config. Test helper only.
func SetForTesting(cfg *Config) {
	mu.Lock()
	instance = cfg
	mu.Unlock()
}
