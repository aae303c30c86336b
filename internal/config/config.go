package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Provider   ProviderConfig
	Resilience ResilienceConfig
	SMTP       SMTPConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	CacheNamespace     string
}

type DatabaseConfig struct {
	Connection string
}

// ProviderConfig selects and configures the identity provider and the data
// store. Kind "http" talks to a remote GoTrue-compatible provider; "local"
// runs the embedded dev provider. StoreKind is "postgrest" or "gorm".
type ProviderConfig struct {
	Kind        string
	IdentityURL string
	AnonKey     string
	StoreKind   string
	StoreURL    string
	StoreAPIKey string
	JWTSecret   string
}

// ResilienceConfig tunes the fetch pipeline and the session lifecycle timing.
type ResilienceConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	PerAttemptTimeout time.Duration
	CircuitCooldown   time.Duration
	InitTimeout       time.Duration
	CacheBufferWindow time.Duration
	ProbeURL          string
	ProbeTimeout      time.Duration
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/portal.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			CacheNamespace:     getEnv("SESSION_CACHE_NAMESPACE", "portal"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Provider: ProviderConfig{
			Kind:        getEnv("IDENTITY_PROVIDER", "local"),
			IdentityURL: getEnv("IDENTITY_PROVIDER_URL", "http://localhost:9999"),
			AnonKey:     getEnv("IDENTITY_PROVIDER_ANON_KEY", ""),
			StoreKind:   getEnv("DATA_STORE", "gorm"),
			StoreURL:    getEnv("DATA_STORE_URL", "http://localhost:3001"),
			StoreAPIKey: getEnv("DATA_STORE_API_KEY", ""),
			JWTSecret:   getEnv("JWT_SECRET", "default_secret"),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:       getEnvAsInt("FETCH_MAX_ATTEMPTS", 3),
			InitialDelay:      getEnvAsDuration("FETCH_INITIAL_DELAY_MS", 500*time.Millisecond),
			BackoffMultiplier: getEnvAsFloat("FETCH_BACKOFF_MULTIPLIER", 2.0),
			PerAttemptTimeout: getEnvAsDuration("FETCH_ATTEMPT_TIMEOUT_MS", 8000*time.Millisecond),
			CircuitCooldown:   getEnvAsDuration("FETCH_CIRCUIT_COOLDOWN_MS", 30000*time.Millisecond),
			InitTimeout:       getEnvAsDuration("SESSION_INIT_TIMEOUT_MS", 10000*time.Millisecond),
			CacheBufferWindow: getEnvAsDuration("SESSION_CACHE_BUFFER_MS", 10*60*1000*time.Millisecond),
			ProbeURL:          getEnv("REACHABILITY_PROBE_URL", ""),
			ProbeTimeout:      getEnvAsDuration("REACHABILITY_PROBE_TIMEOUT_MS", 2000*time.Millisecond),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "Counseling Portal"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration reads a millisecond count.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(value) * time.Millisecond
	}
	return fallback
}
