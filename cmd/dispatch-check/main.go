// README: Operational checker; verifies connectivity, schema and dispatch data consistency, prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	runner := NewRunner(cfg)
	results := runner.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Printf("PASS=%d FAIL=%d WARN=%d SKIP=%d\n", counts[StatusPass], counts[StatusFail], counts[StatusWarn], counts[StatusSkip])

	if counts[StatusFail] > 0 || (cfg.Strict && counts[StatusWarn] > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
	AssignTimeout  time.Duration
	SweepInterval  time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("DISPATCH_CHECK_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("DISPATCH_DB_DSN", ""), "Postgres DSN")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("DISPATCH_REDIS_ADDR", ""), "Redis address")
	flag.StringVar(&cfg.MigrationPath, "migration", envOrDefault("DISPATCH_CHECK_MIGRATION", "migrations/0001_init.sql"), "Migration SQL path")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", false, "Apply migration SQL before checks")
	flag.BoolVar(&cfg.Strict, "strict", false, "Fail on warnings")
	flag.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "Concurrency for the load probe")
	flag.DurationVar(&cfg.Duration, "duration", 0, "Duration of the load probe, 0 disables it")
	flag.DurationVar(&cfg.AssignTimeout, "assign-timeout", 15*time.Second, "Assignment timeout the service runs with")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", 5*time.Second, "Sweep interval the service runs with")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
