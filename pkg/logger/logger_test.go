package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestComponentFieldIsAttached(t *testing.T) {
	l := New(LoggingConfig{Level: "debug", Format: "json"})
	var buf bytes.Buffer
	l.Logger.SetOutput(&buf)

	l.Component("feedback").WithField("rating_id", "r1").Info("rating submitted")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if rec["component"] != "feedback" || rec["rating_id"] != "r1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	l := New(LoggingConfig{Level: "chatty"})
	if l.Logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", l.Logger.GetLevel())
	}
}
