package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	DBUrl                  string
	JWTSecret              string
	AppEnv                 string
	GatewayFeePercent      float64
	GatewayCallbackBaseURL string
	ExpirySweepEnabled     bool
	ExpirySweepSchedule    string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	feePercent := getEnvFloat("GATEWAY_FEE_PERCENT", 10)
	if feePercent < 0 || feePercent >= 100 {
		return nil, fmt.Errorf("GATEWAY_FEE_PERCENT must be in [0, 100)")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		DBUrl:                  getEnv("DB_URL", ""),
		JWTSecret:              jwtSecret,
		AppEnv:                 normalizeEnv(getEnv("APP_ENV", "production")),
		GatewayFeePercent:      feePercent,
		GatewayCallbackBaseURL: strings.TrimRight(getEnv("GATEWAY_CALLBACK_BASE_URL", "http://localhost:8080"), "/"),
		ExpirySweepEnabled:     getEnvBool("EXPIRY_SWEEP_ENABLED", true),
		ExpirySweepSchedule:    getEnv("EXPIRY_SWEEP_SCHEDULE", "@hourly"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
