// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	// Path is the SQLite file used when Driver is "sqlite".
	Path string
}

type Config struct {
	Env    string
	Server struct {
		Port           string
		AllowedOrigins []string
	}
	DB   DBConfig
	Auth struct {
		JWTSecret    string
		LinkTokenTTL time.Duration
	}
	Predictor struct {
		Provider     string
		MLServiceURL string
		Timeout      time.Duration
	}
	GPT struct {
		APIKey string
		Model  string
	}
	Telegram struct {
		Token string
	}
	SNS struct {
		Region      string
		PlatformARN string
	}
	Reminder struct {
		Enabled  bool
		Cron     string
		Timezone string
	}
	Planner struct {
		FeedbackWindow int
	}
	ShutdownTimeout time.Duration
}

var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("$HOME/.nutrition-coach")

	v.SetDefault("Env", "production")
	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("Server.Port", "8000")
	v.SetDefault("Server.AllowedOrigins", defaultOrigins)
	v.SetDefault("DB.Driver", "postgres")
	v.SetDefault("DB.SSLMode", "disable")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("DB.Path", "coach.db")
	v.SetDefault("Auth.LinkTokenTTL", 15*time.Minute)
	v.SetDefault("Predictor.Provider", "ml")
	v.SetDefault("Predictor.MLServiceURL", "http://127.0.0.1:8001")
	v.SetDefault("Predictor.Timeout", 15*time.Second)
	v.SetDefault("GPT.Model", "gpt-4o-mini")
	v.SetDefault("SNS.Region", "ap-south-1")
	v.SetDefault("Reminder.Enabled", true)
	v.SetDefault("Reminder.Cron", "0 19 * * *")
	v.SetDefault("Reminder.Timezone", "UTC")
	v.SetDefault("Planner.FeedbackWindow", 7)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		return fromEnv(), nil
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func fromEnv() *Config {
	cfg := &Config{}

	cfg.Env = getEnvOr("APP_ENV", "production")
	cfg.Server.Port = getEnvOr("PORT", "8000")
	cfg.Server.AllowedOrigins = defaultOrigins
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.DB.Driver = getEnvOr("DB_DRIVER", "postgres")
	cfg.DB.Host = getEnvOr("DB_HOST", "localhost")
	cfg.DB.Port = getEnvOr("DB_PORT", "5432")
	cfg.DB.User = getEnvOr("DB_USER", "postgres")
	cfg.DB.Password = getEnvOr("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnvOr("DB_NAME", "nutrition_coach")
	cfg.DB.SSLMode = getEnvOr("DB_SSL_MODE", "disable")
	cfg.DB.MaxOpenConns = getIntOr("DB_MAX_OPEN_CONNS", 20)
	cfg.DB.MaxIdleConns = getIntOr("DB_MAX_IDLE_CONNS", 10)
	cfg.DB.ConnLifetime = getDurationOr("DB_CONN_LIFETIME", 5*time.Minute)
	cfg.DB.Path = getEnvOr("DB_PATH", "coach.db")

	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.LinkTokenTTL = getDurationOr("LINK_TOKEN_TTL", 15*time.Minute)

	cfg.Predictor.Provider = getEnvOr("PREDICTOR_PROVIDER", "ml")
	cfg.Predictor.MLServiceURL = getEnvOr("ML_SERVICE_URL", "http://127.0.0.1:8001")
	cfg.Predictor.Timeout = getDurationOr("PREDICTOR_TIMEOUT", 15*time.Second)

	cfg.GPT.APIKey = os.Getenv("GPT_API_KEY")
	cfg.GPT.Model = getEnvOr("GPT_MODEL", "gpt-4o-mini")

	cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")

	cfg.SNS.Region = getEnvOr("AWS_REGION", "ap-south-1")
	cfg.SNS.PlatformARN = os.Getenv("SNS_PLATFORM_ARN")

	cfg.Reminder.Enabled = getEnvOr("REMINDER_ENABLED", "true") == "true"
	cfg.Reminder.Cron = getEnvOr("REMINDER_CRON", "0 19 * * *")
	cfg.Reminder.Timezone = getEnvOr("REMINDER_TZ", "UTC")

	cfg.Planner.FeedbackWindow = getIntOr("PLANNER_FEEDBACK_WINDOW", 7)

	cfg.ShutdownTimeout = getDurationOr("SHUTDOWN_TIMEOUT", 10*time.Second)

	return cfg
}

// Helper function to get environment variable with default value
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOr(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getDurationOr(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
