// Package cli implements the netcut command-line interface.
//
// This package provides commands for cutting dataflow graphs into engine
// partitions, rewriting them, drawing the result and serving the pipeline
// over HTTP. The CLI is built using cobra and supports verbose logging via
// the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - rewrite: Replace supported partitions with engine nodes and prune weights
//   - plan: Show the partitions of one or more graphs
//   - render: Draw a graph and its partitions as SVG, PNG or DOT
//   - inspect: Browse a plan interactively
//   - serve: Run the HTTP API
//   - cache: Manage the engine cache
//
// # Configuration
//
// Settings are read from netcut.toml in the working directory, or from the
// file given with --config. Command-line flags override the file.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// reports every partition and cache event.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netcut/pkg/observability"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Rewrote model.json (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// logHooks reports rewrite and cache events at debug level and HTTP
// responses at info level.
type logHooks struct {
	observability.NoopRewriteHooks
	observability.NoopCacheHooks
	observability.NoopHTTPHooks
	logger *log.Logger

	// onConvert, if set, is called after each converted partition.
	onConvert func(partition int)
}

func (h *logHooks) OnRewriteStart(_ context.Context, runID, graph string, nodes int) {
	h.logger.Debug("rewrite started", "run", runID, "graph", graph, "nodes", nodes)
}

func (h *logHooks) OnPartition(_ context.Context, runID string, index, nodes int) {
	h.logger.Debug("partition", "run", runID, "index", index, "nodes", nodes)
}

func (h *logHooks) OnConvert(_ context.Context, runID string, index int, op string, d time.Duration) {
	h.logger.Debug("converted", "run", runID, "partition", index, "op", op, "duration", d.Round(time.Millisecond))
	if h.onConvert != nil {
		h.onConvert(index)
	}
}

func (h *logHooks) OnPrune(_ context.Context, runID string, count int, err error) {
	if err != nil {
		h.logger.Warn("prune failed", "run", runID, "weights", count, "err", err)
		return
	}
	h.logger.Debug("pruned", "run", runID, "weights", count)
}

func (h *logHooks) OnRewriteComplete(_ context.Context, runID string, partitions, pruned int, d time.Duration, err error) {
	h.logger.Debug("rewrite finished", "run", runID, "partitions", partitions, "pruned", pruned,
		"duration", d.Round(time.Millisecond), "err", err)
}

func (h *logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *logHooks) OnResponse(_ context.Context, requestID, method, path string, status int, d time.Duration) {
	h.logger.Info(method+" "+path, "status", status, "duration", d.Round(time.Millisecond), "request", requestID)
}
