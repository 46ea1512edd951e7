package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netcut/pkg/cache"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	nio "github.com/matzehuels/netcut/pkg/io"
	"github.com/matzehuels/netcut/pkg/pipeline"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "netcut"

	// Sibling file suffixes looked up next to a graph file.
	weightsSuffix = ".weights.json"
	hintsSuffix   = ".hints.json"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath is the --config flag. Empty means netcut.toml if present.
	ConfigPath string

	config pipeline.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		config: pipeline.DefaultConfig(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// loadConfig reads the config file named by ConfigPath.
func (c *CLI) loadConfig() error {
	cfg, err := pipeline.LoadConfig(c.ConfigPath)
	if err != nil {
		return err
	}
	c.config = cfg
	c.Logger.Debug("loaded config", "path", c.ConfigPath, "cache", cfg.Cache.Backend, "store", cfg.Store.Backend)
	return nil
}

// =============================================================================
// Cache and Transformer Factory
// =============================================================================

// openCache opens the configured engine cache, or a null cache when
// noCache is set.
func (c *CLI) openCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	return c.config.Cache.Open(ctx)
}

// newTransformer builds a transformer from the configured rewrite options
// after applying overrides. It logs through the CLI logger.
func (c *CLI) newTransformer(opts pipeline.Options, cc cache.Cache) (*pipeline.Transformer, error) {
	opts.Logger = c.Logger
	return pipeline.NewTransformer(opts, cc, c.keyer())
}

// keyer scopes engine keys with the configured cache prefix.
func (c *CLI) keyer() cache.Keyer {
	keyer := cache.NewDefaultKeyer()
	// Redis applies the prefix itself.
	if c.config.Cache.Prefix != "" && c.config.Cache.Backend != pipeline.CacheRedis {
		keyer = cache.NewScopedKeyer(keyer, c.config.Cache.Prefix)
	}
	return keyer
}

// =============================================================================
// Inputs
// =============================================================================

// inputPaths names the files a command reads. Empty weight and hint paths
// fall back to sibling files of the graph.
type inputPaths struct {
	graph   string
	weights string
	hints   string
}

// inputs is a loaded graph with its weights and shape hints.
type inputs struct {
	graph *dag.Graph
	hints shape.Table

	// weights is nil when no weight source was found and the command
	// allows that.
	weights store.Store

	// file is set when weights came from a JSON file.
	file *store.FileStore

	close func()
}

// siblingPath returns the file next to graphPath with the given suffix:
// model.json becomes model.weights.json.
func siblingPath(graphPath, suffix string) string {
	return strings.TrimSuffix(graphPath, filepath.Ext(graphPath)) + suffix
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadInputs reads a graph with its weights and hints. When the store
// backend is mongo, weights come from the database. Otherwise they come
// from the weights file or its sibling; if neither exists the result has a
// nil store, or an empty one when requireStore is set.
func (c *CLI) loadInputs(ctx context.Context, paths inputPaths, requireStore bool) (*inputs, error) {
	g, err := nio.ImportGraph(paths.graph)
	if err != nil {
		return nil, err
	}
	in := &inputs{graph: g, close: func() {}}

	hintsPath := paths.hints
	if hintsPath == "" && exists(siblingPath(paths.graph, hintsSuffix)) {
		hintsPath = siblingPath(paths.graph, hintsSuffix)
	}
	if hintsPath != "" {
		if in.hints, err = nio.ImportHints(hintsPath); err != nil {
			return nil, err
		}
		c.Logger.Debug("loaded hints", "path", hintsPath, "count", len(in.hints))
	}

	if c.config.Store.Backend == pipeline.StoreMongo {
		if paths.weights != "" {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "--weights cannot be used with the mongo store backend")
		}
		m, err := c.config.Store.OpenMongo(ctx)
		if err != nil {
			return nil, err
		}
		in.weights = m
		in.close = func() {
			if err := m.Close(context.WithoutCancel(ctx)); err != nil {
				c.Logger.Warn("close weight store", "err", err)
			}
		}
		return in, nil
	}

	weightsPath := paths.weights
	if weightsPath != "" && !exists(weightsPath) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "weights file %s not found", weightsPath)
	}
	if weightsPath == "" && exists(siblingPath(paths.graph, weightsSuffix)) {
		weightsPath = siblingPath(paths.graph, weightsSuffix)
	}
	switch {
	case weightsPath != "":
		f, err := store.OpenFileStore(weightsPath)
		if err != nil {
			return nil, err
		}
		in.weights, in.file = f, f
		c.Logger.Debug("loaded weights", "path", weightsPath, "count", f.Len())
	case requireStore:
		in.weights = store.NewMemoryStore(nil)
	}
	return in, nil
}
