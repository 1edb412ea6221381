// Package config assembles the flat, env-var driven Config struct used by
// cmd/server, grounded in the teacher's config.go getEnv/getEnvInt pattern.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full configuration surface named in the spec's external
// interfaces section.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisAddr   string
	KafkaBrokers []string

	BatchSize           int
	MaxWaves            int
	InitialRadiusKM     float64
	RadiusIncrementKM   float64
	MaxRadiusKM         float64
	OfferTimeout        time.Duration

	// AverageSpeedKMH is loaded from AVERAGE_SPEED_KMH but nothing reads it:
	// fare.Engine always uses its fixed fare.AverageSpeedKMH constant (25).
	AverageSpeedKMH float64

	PickupOTPLength   int
	PickupOTPTTL      time.Duration
	MaxOTPAttempts    int

	LocationTTL time.Duration
}

// Load assembles a Config from the process environment, falling back to the
// documented defaults for anything unset.
func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/ride_service?sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),

		BatchSize:         getEnvInt("BATCH_SIZE", 3),
		MaxWaves:          getEnvInt("MAX_WAVES", 3),
		InitialRadiusKM:   getEnvFloat("INITIAL_RADIUS_KM", 3.0),
		RadiusIncrementKM: getEnvFloat("RADIUS_INCREMENT_KM", 2.0),
		MaxRadiusKM:       getEnvFloat("MAX_RADIUS_KM", 10.0),
		OfferTimeout:      getEnvDuration("OFFER_TIMEOUT_SECONDS", 15*time.Second),

		AverageSpeedKMH: getEnvFloat("AVERAGE_SPEED_KMH", 25.0),

		PickupOTPLength: getEnvInt("PICKUP_OTP_LENGTH", 6),
		PickupOTPTTL:    getEnvDuration("PICKUP_OTP_TTL_MIN", 5*time.Minute),
		MaxOTPAttempts:  getEnvInt("MAX_OTP_ATTEMPTS", 3),

		LocationTTL: getEnvDuration("LOCATION_TTL_MIN", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration reads a bare integer and converts it to a duration in
// minutes when key ends in "_MIN" and in seconds otherwise.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	unit := time.Second
	if strings.HasSuffix(key, "_MIN") {
		unit = time.Minute
	}
	return time.Duration(n) * unit
}
