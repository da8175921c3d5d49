// README: Config loader with env defaults for HTTP, storage, messaging, and dispatch settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ridedispatch/internal/modules/pricing"
)

const envPrefix = "DISPATCH_"

type DispatchConfig struct {
	AssignTimeout  time.Duration
	MaxAttempts    int
	SweepInterval  time.Duration
	LocationMaxAge time.Duration
	Simulate       bool
}

type Config struct {
	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Maps struct {
		APIKey string
	}
	Seed struct {
		File string
	}
	Log struct {
		Level  string
		Format string
	}
	Dispatch DispatchConfig
	Tariff   pricing.Tariff
	Location *time.Location
}

// DefaultTariff is the rate card applied to trips without a home station.
func DefaultTariff() pricing.Tariff {
	return pricing.Tariff{
		BaseRate:       50,
		PerKmRate:      15,
		NightSurcharge: 1.5,
		NightStartHour: 0,
		NightEndHour:   6,
		MinFare:        50,
	}
}

// Load reads DISPATCH_* variables. Every malformed value is reported, not
// just the first one.
func Load() (Config, error) {
	var cfg Config
	var errs []error

	cfg.HTTP.Addr = envOrDefault("HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = envDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second, &errs)
	cfg.DB.DSN = env("DB_DSN")
	cfg.Redis.Addr = env("REDIS_ADDR")
	cfg.Redis.Password = env("REDIS_PASSWORD")
	cfg.Firebase.ProjectID = env("FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = env("FIREBASE_CREDENTIALS")
	cfg.Kafka.Brokers = splitAndTrim(env("KAFKA_BROKERS"))
	cfg.Kafka.Topic = envOrDefault("KAFKA_TOPIC", "trip-events")
	cfg.Maps.APIKey = env("MAPS_API_KEY")
	cfg.Seed.File = env("SEED_FILE")
	cfg.Log.Level = strings.ToLower(envOrDefault("LOG_LEVEL", "info"))
	cfg.Log.Format = strings.ToLower(envOrDefault("LOG_FORMAT", "json"))

	cfg.Dispatch.AssignTimeout = envDuration("ASSIGN_TIMEOUT", 15*time.Second, &errs)
	cfg.Dispatch.MaxAttempts = envInt("MAX_ATTEMPTS", 10, &errs)
	cfg.Dispatch.SweepInterval = envDuration("SWEEP_INTERVAL", 5*time.Second, &errs)
	cfg.Dispatch.LocationMaxAge = envDuration("LOCATION_MAX_AGE", 15*time.Minute, &errs)
	cfg.Dispatch.Simulate = envBool("SIMULATE_RESPONSES", false, &errs)

	def := DefaultTariff()
	cfg.Tariff = pricing.Tariff{
		BaseRate:       envFloat("DEFAULT_BASE_RATE", def.BaseRate, &errs),
		PerKmRate:      envFloat("DEFAULT_PER_KM_RATE", def.PerKmRate, &errs),
		NightSurcharge: envFloat("DEFAULT_NIGHT_SURCHARGE", def.NightSurcharge, &errs),
		NightStartHour: envInt("DEFAULT_NIGHT_START_HOUR", def.NightStartHour, &errs),
		NightEndHour:   envInt("DEFAULT_NIGHT_END_HOUR", def.NightEndHour, &errs),
		MinFare:        envFloat("DEFAULT_MIN_FARE", def.MinFare, &errs),
	}

	loc, err := time.LoadLocation(envOrDefault("TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid %sTIMEZONE: %w", envPrefix, err))
		loc = time.UTC
	}
	cfg.Location = loc

	if cfg.Dispatch.AssignTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sASSIGN_TIMEOUT must be > 0", envPrefix))
	}
	if cfg.Dispatch.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("%sMAX_ATTEMPTS must be >= 0", envPrefix))
	}
	if cfg.Dispatch.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("%sSWEEP_INTERVAL must be > 0", envPrefix))
	}
	if h := cfg.Tariff.NightStartHour; h < 0 || h > 23 {
		errs = append(errs, fmt.Errorf("%sDEFAULT_NIGHT_START_HOUR out of range: %d", envPrefix, h))
	}
	if h := cfg.Tariff.NightEndHour; h < 0 || h > 23 {
		errs = append(errs, fmt.Errorf("%sDEFAULT_NIGHT_END_HOUR out of range: %d", envPrefix, h))
	}

	return cfg, errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func envOrDefault(key, def string) string {
	if v := env(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	v := env(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err))
		return def
	}
	return n
}

func envFloat(key string, def float64, errs *[]error) float64 {
	v := env(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err))
		return def
	}
	return f
}

func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := env(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err))
		return def
	}
	return d
}

func envBool(key string, def bool, errs *[]error) bool {
	v := env(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err))
		return def
	}
	return b
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
