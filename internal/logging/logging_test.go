package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogErrorWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("error", &buf)

	LogError(logger, "saleform", "Commit", "create stock movement", map[string]int64{"order_id": 7}, errors.New("boom"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (raw %q)", err, buf.String())
	}
	if line["msg"] != "boom" {
		t.Fatalf("expected msg boom, got %v", line["msg"])
	}
	if line["module"] != "saleform" || line["funcName"] != "Commit" {
		t.Fatalf("missing module fields: %v", line)
	}
	if _, ok := line["data"]; !ok {
		t.Fatalf("expected data field in %v", line)
	}
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	logger := New("not-a-level")
	if logger.GetLevel().String() != "info" {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}
