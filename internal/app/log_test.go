package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLineHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "logged in",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\tlogged in\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "api request",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tapi request\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelWarn,
			message: "like failed",
			attrs:   []slog.Attr{slog.Int64("post_id", 7), slog.String("error", "boom")},
			want:    "2024-06-15T14:30:45Z\tWARN\trun-789\tlike failed\tpost_id=7\terror=boom\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &lineHandler{file: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLineHandler_ConsoleLevel(t *testing.T) {
	var file, console bytes.Buffer
	h := &lineHandler{file: &file, console: &console, consoleLevel: slog.LevelWarn, runID: "r"}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if err := h.Handle(context.Background(), slog.NewRecord(ts, level, "msg", 0)); err != nil {
			t.Fatalf("Handle(%v) error = %v", level, err)
		}
	}

	if got := strings.Count(file.String(), "\n"); got != 4 {
		t.Errorf("file lines = %d, want 4", got)
	}
	if got := strings.Count(console.String(), "\n"); got != 2 {
		t.Errorf("console lines = %d, want 2", got)
	}
	if strings.Contains(console.String(), "INFO") {
		t.Errorf("console received an info record: %q", console.String())
	}
}

func TestLineHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &lineHandler{file: &buf, runID: "run-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "session")}).(*lineHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "restored", 0)
	r.AddAttrs(slog.Int64("user_id", 3))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=session") {
		t.Errorf("expected pre-set attr component=session, got: %q", got)
	}
	if !strings.Contains(got, "user_id=3") {
		t.Errorf("expected record attr user_id=3, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "test-run")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("hello", "k", "v")

	data, err := os.ReadFile(filepath.Join(dir, LogFile))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "\ttest-run\thello\tk=v") {
		t.Errorf("log file = %q", data)
	}
}
