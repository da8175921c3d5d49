package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"testing"
)

func TestSplitSQL(t *testing.T) {
	sql := `-- header
CREATE TABLE IF NOT EXISTS a (id TEXT);

-- second
CREATE INDEX IF NOT EXISTS idx_a ON a (id);
`
	got := splitSQL(sql)
	want := []string{"CREATE TABLE IF NOT EXISTS a (id TEXT)", "CREATE INDEX IF NOT EXISTS idx_a ON a (id)"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %q", got)
	}
}

func TestMigrationTables(t *testing.T) {
	b, err := os.ReadFile("../../migrations/0001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	got := extractTables(string(b))
	want := []string{"stations", "drivers", "trips", "trip_state_events"}
	if !slices.Equal(got, want) {
		t.Fatalf("tables = %v", got)
	}
	for _, stmt := range splitSQL(string(b)) {
		if stmt == "" {
			t.Fatal("empty statement")
		}
	}
}

func TestChecksSkipWithoutBackends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte("OK"))
		case "/metrics":
			_, _ = w.Write([]byte("dispatch_assignments_total 3\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewRunner(Config{BaseURL: srv.URL, MigrationPath: "../../migrations/0001_init.sql"})
	results := r.RunAll(context.Background())
	for _, res := range results {
		if res.Status == StatusFail {
			t.Errorf("%s failed: %s", res.Name, res.Note)
		}
	}
	byName := map[string]string{}
	for _, res := range results {
		byName[res.Name] = res.Status
	}
	if byName["API: health"] != StatusPass || byName["API: metrics exposed"] != StatusPass {
		t.Errorf("api checks = %v", byName)
	}
	if byName["Invariant: one active trip per driver"] != StatusSkip {
		t.Errorf("sql checks should skip without a dsn")
	}
}
