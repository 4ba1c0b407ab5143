package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	HTTPAddr    string
	LogLevel    string

	DBDriver       string
	DatabaseURL    string
	MigrateOnStart bool

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	BcryptCost int

	APIURL    string
	ClientURL string

	ActivationConsume bool
	ActivationTTL     time.Duration
	RequireActivation bool

	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration

	CookieSecure bool
	CSRFEnabled  bool
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "authsvc"),
		HTTPAddr:    EnvDefault("HTTP_ADDR", ":5000"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DBDriver:       EnvDefault("DB_DRIVER", "postgres"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrateOnStart: EnvBoolDefault("MIGRATE_ON_START", true),

		JWTAccessSecret:  []byte(os.Getenv("JWT_ACCESS_SECRET")),
		JWTRefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		AccessTTL:        EnvDurationDefault("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTTL:       EnvDurationDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		BcryptCost: EnvIntDefault("BCRYPT_COST", 10),

		APIURL:    strings.TrimRight(EnvDefault("API_URL", "http://localhost:5000"), "/"),
		ClientURL: EnvDefault("CLIENT_URL", "http://localhost:3000"),

		ActivationConsume: EnvBoolDefault("ACTIVATION_CONSUME", false),
		ActivationTTL:     EnvDurationDefault("ACTIVATION_TTL", 0),
		RequireActivation: EnvBoolDefault("REQUIRE_ACTIVATION", false),

		SessionBackend: EnvDefault("SESSION_BACKEND", "sql"),
		RedisAddr:      EnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        EnvIntDefault("REDIS_DB", 0),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "user_events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "users"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     EnvIntDefault("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     EnvDefault("SMTP_FROM", os.Getenv("SMTP_USER")),
		SMTPTimeout:  EnvDurationDefault("SMTP_TIMEOUT", 10*time.Second),

		CookieSecure: EnvBoolDefault("COOKIE_SECURE", false),
		CSRFEnabled:  EnvBoolDefault("CSRF_ENABLED", false),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// The Env*Default helpers stop the process on a value that does not parse:
// a typo must not silently run the service with the default.

func EnvIntDefault(key string, def int) int {
	n, err := envInt(key, def)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	b, err := envBool(key, def)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return b
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	d, err := envDuration(key, def)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return d
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q (want a Go duration such as 15m): %w", key, v, err)
	}
	return d, nil
}
