package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port          int
	RedisURL      string
	RedisPassword string
	DatabaseURL   string // empty means in-memory record storage
	GeminiAPIKey  string // empty means keyword classifier (demo mode)

	SessionTTL      time.Duration
	CleanupInterval time.Duration

	ClassifyTimeout     time.Duration
	ConfidenceThreshold float64

	FailureThreshold int
	UnavailableLimit int
	TurnCeiling      int

	RestaurantName  string
	CreditUnionName string
	StaffPhone      string

	BusinessHoursStart int // hour of day, 24h clock
	BusinessHoursEnd   int

	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:                8080,
		RedisURL:            "localhost:6379",
		SessionTTL:          30 * time.Minute,
		CleanupInterval:     5 * time.Minute,
		ClassifyTimeout:     5 * time.Second,
		ConfidenceThreshold: 0.5,
		FailureThreshold:    3,
		UnavailableLimit:    3,
		TurnCeiling:         30,
		RestaurantName:      "Bella Vista",
		CreditUnionName:     "Horizon Credit Union",
		StaffPhone:          "",
		BusinessHoursStart:  9,
		BusinessHoursEnd:    17,
		AllowedOrigins:      []string{"*"},
	}

	// Optional: GEMINI_API_KEY (keyword classifier is used without it)
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: REDIS_URL / REDIS_PASSWORD
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: DATABASE_URL
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.DatabaseURL = dbURL
	}

	// Optional: SESSION_TTL (in minutes)
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
		}
		config.SessionTTL = time.Duration(t) * time.Minute
	}

	// Optional: CLEANUP_INTERVAL (in minutes)
	if interval := os.Getenv("CLEANUP_INTERVAL"); interval != "" {
		i, err := strconv.Atoi(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid CLEANUP_INTERVAL: %w", err)
		}
		config.CleanupInterval = time.Duration(i) * time.Minute
	}

	// Optional: CLASSIFY_TIMEOUT (in seconds)
	if timeout := os.Getenv("CLASSIFY_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid CLASSIFY_TIMEOUT: %w", err)
		}
		config.ClassifyTimeout = time.Duration(t) * time.Second
	}

	// Optional: CONFIDENCE_THRESHOLD (0..1)
	if threshold := os.Getenv("CONFIDENCE_THRESHOLD"); threshold != "" {
		f, err := strconv.ParseFloat(threshold, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("invalid CONFIDENCE_THRESHOLD: must be between 0 and 1")
		}
		config.ConfidenceThreshold = f
	}

	// Optional: FAILURE_THRESHOLD
	if v := os.Getenv("FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid FAILURE_THRESHOLD: must be a positive integer")
		}
		config.FailureThreshold = n
	}

	// Optional: UNAVAILABLE_LIMIT
	if v := os.Getenv("UNAVAILABLE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid UNAVAILABLE_LIMIT: must be a positive integer")
		}
		config.UnavailableLimit = n
	}

	// Optional: TURN_CEILING
	if v := os.Getenv("TURN_CEILING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid TURN_CEILING: must be a positive integer")
		}
		config.TurnCeiling = n
	}

	// Optional: business identities and staff handoff number
	if name := os.Getenv("RESTAURANT_NAME"); name != "" {
		config.RestaurantName = name
	}
	if name := os.Getenv("CREDIT_UNION_NAME"); name != "" {
		config.CreditUnionName = name
	}
	if phone := os.Getenv("STAFF_PHONE"); phone != "" {
		config.StaffPhone = phone
	}

	// Optional: BUSINESS_HOURS (e.g. "9-17", 24h clock)
	if hours := os.Getenv("BUSINESS_HOURS"); hours != "" {
		parts := strings.SplitN(hours, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid BUSINESS_HOURS: expected START-END")
		}
		start, err1 := strconv.Atoi(parts[0])
		end, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || start < 0 || end > 24 || start >= end {
			return nil, fmt.Errorf("invalid BUSINESS_HOURS: expected START-END within 0-24")
		}
		config.BusinessHoursStart = start
		config.BusinessHoursEnd = end
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	return config, nil
}
