package neolink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph/memgraph"
	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph/neo4jgraph"
	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph/sqlitegraph"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

// Config holds the runtime configuration, read from the environment.
type Config struct {
	Backend    string `env:"NEOLINK_BACKEND" envDefault:"memory"`
	SQLitePath string `env:"NEOLINK_SQLITE_PATH" envDefault:"neolink.db"`
	Schema     string `env:"NEOLINK_SCHEMA"`
	LogLevel   string `env:"NEOLINK_LOG_LEVEL" envDefault:"info"`
	// PreventDuplicates is the default duplicate policy of many-to-many relations.
	PreventDuplicates bool `env:"NEOLINK_PREVENT_DUPLICATES" envDefault:"true"`

	Neo4j Neo4jConfig
}

// Neo4jConfig holds the Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `env:"NEO4J_URI" envDefault:"neo4j://localhost:7687"`
	User     string `env:"NEO4J_USER" envDefault:"neo4j"`
	Password string `env:"NEO4J_PASSWORD"`
	Database string `env:"NEO4J_DATABASE" envDefault:"neo4j"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// RegistryOptions returns the registry options the configuration implies.
func (c *Config) RegistryOptions() []RegistryOption {
	return []RegistryOption{WithPreventDuplicates(c.PreventDuplicates)}
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}))
}

// ParseLevel maps debug, info, warn and error to slog levels; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// OpenStore opens the configured graph backend.
func OpenStore(ctx context.Context, cfg *Config, log *slog.Logger) (graph.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory, "":
		return memgraph.New(), nil
	case BackendSQLite:
		store, err := sqlitegraph.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("opened sqlite graph", slog.String("path", cfg.SQLitePath))
		return store, nil
	case BackendNeo4j:
		exec, err := neo4jgraph.NewExecutor(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return nil, err
		}
		if err := exec.Verify(ctx); err != nil {
			exec.Close(ctx)
			return nil, fmt.Errorf("neo4j connectivity: %w", err)
		}
		log.Info("connected to neo4j",
			slog.String("uri", cfg.Neo4j.URI),
			slog.String("database", cfg.Neo4j.Database))
		return neo4jgraph.NewStore(exec), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
