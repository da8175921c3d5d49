package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.AssignTimeout != 15*time.Second || cfg.Dispatch.MaxAttempts != 10 {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.SweepInterval != 5*time.Second || cfg.Dispatch.LocationMaxAge != 15*time.Minute {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Tariff != DefaultTariff() {
		t.Errorf("tariff = %+v", cfg.Tariff)
	}
	if cfg.Kafka.Topic != "trip-events" || len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
	if cfg.Seed.File != "" {
		t.Errorf("seed file = %q", cfg.Seed.File)
	}
	if cfg.Location != time.UTC {
		t.Errorf("location = %v", cfg.Location)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISPATCH_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DISPATCH_ASSIGN_TIMEOUT", "30s")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "0")
	t.Setenv("DISPATCH_SIMULATE_RESPONSES", "true")
	t.Setenv("DISPATCH_DEFAULT_PER_KM_RATE", "17.5")
	t.Setenv("DISPATCH_LOG_LEVEL", "DEBUG")
	t.Setenv("DISPATCH_SEED_FILE", " ./seed.json ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Kafka.Brokers; len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Errorf("brokers = %v", got)
	}
	if cfg.Dispatch.AssignTimeout != 30*time.Second {
		t.Errorf("assign timeout = %v", cfg.Dispatch.AssignTimeout)
	}
	if cfg.Dispatch.MaxAttempts != 0 || !cfg.Dispatch.Simulate {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Tariff.PerKmRate != 17.5 {
		t.Errorf("per km = %v", cfg.Tariff.PerKmRate)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Seed.File != "./seed.json" {
		t.Errorf("seed file = %q", cfg.Seed.File)
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	t.Setenv("DISPATCH_ASSIGN_TIMEOUT", "soon")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "-1")
	t.Setenv("DISPATCH_DEFAULT_NIGHT_END_HOUR", "24")
	t.Setenv("DISPATCH_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"ASSIGN_TIMEOUT", "MAX_ATTEMPTS", "NIGHT_END_HOUR", "TIMEZONE"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}
