package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Razorpay   RazorpayConfig
	Shiprocket ShiprocketConfig
	SendGrid   SendGridConfig
	Storage    StorageConfig
	Kafka      KafkaConfig
	Outbox     OutboxConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Currency  string
}

type ShiprocketConfig struct {
	BaseURL        string
	Email          string
	Password       string
	ChannelID      string
	PickupLocation string
	PickupPostcode string
	TokenTTL       time.Duration
}

type SendGridConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
}

type StorageConfig struct {
	Region        string
	Bucket        string
	PublicBaseURL string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	MaxAttempts  int
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 30)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1")
	viper.SetDefault("RAZORPAY_CURRENCY", "INR")
	viper.SetDefault("SHIPROCKET_API_URL", "https://apiv2.shiprocket.in/v1/external")
	viper.SetDefault("SHIPROCKET_PICKUP_LOCATION", "Primary")
	viper.SetDefault("SHIPROCKET_TOKEN_TTL_HOURS", 216)
	viper.SetDefault("SENDGRID_FROM_NAME", "Storefront")
	viper.SetDefault("SENDGRID_FROM_EMAIL", "no-reply@example.com")
	viper.SetDefault("AWS_REGION", "ap-south-1")
	viper.SetDefault("KAFKA_TOPIC", "order-events")
	viper.SetDefault("OUTBOX_POLL_INTERVAL_SECONDS", 5)
	viper.SetDefault("OUTBOX_BATCH_SIZE", 20)
	viper.SetDefault("OUTBOX_WORKERS", 4)
	viper.SetDefault("OUTBOX_MAX_ATTEMPTS", 8)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(viper.GetString("ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   time.Duration(viper.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		Razorpay: RazorpayConfig{
			KeyID:     viper.GetString("RAZORPAY_KEY_ID"),
			KeySecret: viper.GetString("RAZORPAY_KEY_SECRET"),
			BaseURL:   viper.GetString("RAZORPAY_BASE_URL"),
			Currency:  viper.GetString("RAZORPAY_CURRENCY"),
		},
		Shiprocket: ShiprocketConfig{
			BaseURL:        viper.GetString("SHIPROCKET_API_URL"),
			Email:          viper.GetString("SHIPROCKET_API_EMAIL"),
			Password:       viper.GetString("SHIPROCKET_API_PASSWORD"),
			ChannelID:      viper.GetString("SHIPROCKET_CHANNEL_ID"),
			PickupLocation: viper.GetString("SHIPROCKET_PICKUP_LOCATION"),
			PickupPostcode: viper.GetString("SHIPROCKET_PICKUP_POSTCODE"),
			TokenTTL:       time.Duration(viper.GetInt("SHIPROCKET_TOKEN_TTL_HOURS")) * time.Hour,
		},
		SendGrid: SendGridConfig{
			APIKey:    viper.GetString("SENDGRID_API_KEY"),
			FromName:  viper.GetString("SENDGRID_FROM_NAME"),
			FromEmail: viper.GetString("SENDGRID_FROM_EMAIL"),
		},
		Storage: StorageConfig{
			Region:        viper.GetString("AWS_REGION"),
			Bucket:        viper.GetString("AWS_BUCKET_NAME"),
			PublicBaseURL: viper.GetString("ASSET_BASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
		Outbox: OutboxConfig{
			PollInterval: time.Duration(viper.GetInt("OUTBOX_POLL_INTERVAL_SECONDS")) * time.Second,
			BatchSize:    viper.GetInt("OUTBOX_BATCH_SIZE"),
			Workers:      viper.GetInt("OUTBOX_WORKERS"),
			MaxAttempts:  viper.GetInt("OUTBOX_MAX_ATTEMPTS"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
