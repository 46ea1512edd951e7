package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{
			name:    "info at info level",
			level:   log.InfoLevel,
			logFunc: func(l *log.Logger) { l.Info("test") },
			wantLog: true,
		},
		{
			name:    "debug at info level",
			level:   log.InfoLevel,
			logFunc: func(l *log.Logger) { l.Debug("test") },
			wantLog: false,
		},
		{
			name:    "debug at debug level",
			level:   log.DebugLevel,
			logFunc: func(l *log.Logger) { l.Debug("test") },
			wantLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.level)
			tt.logFunc(logger)

			gotLog := buf.Len() > 0
			if gotLog != tt.wantLog {
				t.Errorf("got log output = %v, want %v", gotLog, tt.wantLog)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	time.Sleep(10 * time.Millisecond)
	prog.done("rewrote model.json")

	if !strings.Contains(buf.String(), "rewrote model.json (") {
		t.Errorf("progress.done() output = %q", buf.String())
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	var converted []int
	h := &logHooks{
		logger:    newLogger(&buf, log.DebugLevel),
		onConvert: func(i int) { converted = append(converted, i) },
	}
	ctx := context.Background()

	h.OnRewriteStart(ctx, "run", "g", 3)
	h.OnConvert(ctx, "run", 0, "TensorRT", time.Millisecond)
	h.OnConvert(ctx, "run", 1, "TensorRT", time.Millisecond)
	h.OnPrune(ctx, "run", 2, errors.New("read-only"))
	h.OnCacheMiss(ctx, "engine")

	if len(converted) != 2 || converted[1] != 1 {
		t.Errorf("onConvert calls = %v", converted)
	}
	out := buf.String()
	for _, want := range []string{"rewrite started", "converted", "prune failed", "cache miss"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}
