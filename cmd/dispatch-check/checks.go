// README: Check cases: environment, schema, API liveness and dispatch invariants over live data.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusWarn = "WARN"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type Check struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	checks := r.checks()
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		res := c.Run(ctx, r)
		res.Name = c.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, c.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) checks() []Check {
	overdue := r.cfg.AssignTimeout + 2*r.cfg.SweepInterval
	return []Check{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: StatusSkip, Note: "dsn not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: StatusSkip, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Migration: apply", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.get(ctx, "/health", "")
		}},
		{Name: "API: metrics exposed", Run: func(ctx context.Context, r *Runner) Result {
			return r.get(ctx, "/metrics", "dispatch_")
		}},

		sqlCheck("Invariant: busy drivers hold an active trip", StatusFail, `
			SELECT count(*) FROM drivers d
			WHERE d.status = 'busy' AND NOT EXISTS (
				SELECT 1 FROM trips t WHERE t.driver_id = d.id AND t.status IN ('assigned', 'accepted', 'in_progress'))`),
		sqlCheck("Invariant: one active trip per driver", StatusFail, `
			SELECT count(*) FROM (
				SELECT driver_id FROM trips WHERE status IN ('assigned', 'accepted', 'in_progress')
				GROUP BY driver_id HAVING count(*) > 1) dup`),
		sqlCheck("Invariant: assigned trips carry driver and deadline", StatusFail, `
			SELECT count(*) FROM trips
			WHERE status = 'assigned' AND (driver_id IS NULL OR assignment_expiry IS NULL)`),
		sqlCheck("Invariant: pending and cancelled trips hold no driver", StatusFail, `
			SELECT count(*) FROM trips WHERE status IN ('pending', 'cancelled') AND driver_id IS NOT NULL`),
		sqlCheck("Invariant: completed trips are billed", StatusFail, `
			SELECT count(*) FROM trips
			WHERE status = 'completed' AND (actual_fare IS NULL OR payment_status <> 'paid')`),
		sqlCheck("Invariant: attempts within cap", StatusFail, `
			SELECT count(*) FROM trips WHERE max_attempts > 0 AND current_attempt > max_attempts`),
		sqlCheck("Consistency: last event matches trip status", StatusWarn, `
			SELECT count(*) FROM trips t
			JOIN LATERAL (
				SELECT to_status FROM trip_state_events e WHERE e.trip_id = t.id
				ORDER BY e.created_at DESC, e.id DESC LIMIT 1) last ON true
			WHERE last.to_status <> t.status`),
		sqlCheck("Sweeper: no assignment overdue", StatusWarn, fmt.Sprintf(`
			SELECT count(*) FROM trips
			WHERE status = 'assigned' AND assignment_expiry < now() - interval '%d milliseconds'`, overdue.Milliseconds())),

		{Name: "Perf: health throughput", Run: loadProbe},
	}
}

// sqlCheck passes when the query counts zero offending rows.
func sqlCheck(name, onViolation, query string) Check {
	return Check{Name: name, Run: func(ctx context.Context, r *Runner) Result {
		if r.db == nil {
			return Result{Status: StatusSkip, Note: "dsn not configured"}
		}
		var n int
		if err := r.db.QueryRow(ctx, query).Scan(&n); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if n > 0 {
			return Result{Status: onViolation, Note: fmt.Sprintf("%d offending rows", n)}
		}
		return Result{Status: StatusPass}
	}}
}

func (r *Runner) get(ctx context.Context, path, wantBody string) Result {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+path, nil)
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if resp.StatusCode != http.StatusOK {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	}
	if wantBody != "" && !strings.Contains(string(body), wantBody) {
		return Result{Status: StatusWarn, Latency: latency, Note: "missing " + wantBody}
	}
	return Result{Status: StatusPass, Latency: latency}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: StatusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: StatusFail, Note: "dsn not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	return Result{Status: StatusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	b, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range extractTables(string(b)) {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass}
}

func loadProbe(ctx context.Context, r *Runner) Result {
	if r.cfg.Duration <= 0 {
		return Result{Status: StatusSkip, Note: "duration=0"}
	}
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
				resp, err := r.httpc.Do(req)
				if err != nil {
					errCount.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(sql string) []string {
	matches := createTableRe.FindAllStringSubmatch(sql, -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables
}

// splitSQL drops comment lines and splits on semicolons. Statements must not
// contain literal semicolons.
func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
