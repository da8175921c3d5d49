package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("debug", "json", &buf)
	Component(log, "trip").WithField("trip_id", "t1").Debug("assigned")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "trip" || line["trip_id"] != "t1" || line["msg"] != "assigned" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewWithOutput_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("chatty", "text", &buf)
	log.Debug("hidden")
	log.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
