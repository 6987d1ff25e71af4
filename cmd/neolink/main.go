// Package main provides the neolink CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/go-neolink"
	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph/neo4jgraph"
)

var rootCmd = &cobra.Command{
	Use:   "neolink",
	Short: "Typed relations over a property graph",
	Long:  `neolink validates relation schemas and links, reads and deletes entities in a SQLite, Neo4j or in-memory graph.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(envFile)
		c, err := neolink.LoadConfig()
		if err != nil {
			return err
		}
		if schemaPath != "" {
			c.Schema = schemaPath
		}
		if backend != "" {
			c.Backend = backend
		}
		cfg = c
		logger = cfg.Logger(os.Stderr)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema commands",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a schema file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaValidate,
}

var schemaPrintCmd = &cobra.Command{
	Use:   "print [file]",
	Short: "Print a schema file in normalized form",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaPrint,
}

var createCmd = &cobra.Command{
	Use:   "create <type> [key=value...]",
	Short: "Create an entity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCreate,
}

var linkCmd = &cobra.Command{
	Use:   "link <relation> <source-id> <target-id> [key=value...]",
	Short: "Link two entities, enforcing the relation's cardinality",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runLink,
}

var setCmd = &cobra.Command{
	Use:   "set <id> <key> [value...]",
	Short: "Set a property; relation keys take the ids of the related entities",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSet,
}

var getCmd = &cobra.Command{
	Use:   "get <id> <key>",
	Short: "Read a property",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entity, following cascade flags",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an entity with its edges and neighbours as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var (
	envFile    string
	schemaPath string
	backend    string

	cfg    *neolink.Config
	logger *slog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Schema file (default $NEOLINK_SCHEMA)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Graph backend: memory, sqlite or neo4j (default $NEOLINK_BACKEND)")

	schemaCmd.AddCommand(schemaValidateCmd)
	schemaCmd.AddCommand(schemaPrintCmd)

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func schemaFile(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.Schema == "" {
		return "", fmt.Errorf("no schema given; pass a file, --schema or set NEOLINK_SCHEMA")
	}
	return cfg.Schema, nil
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	path, err := schemaFile(args)
	if err != nil {
		return err
	}
	reg, err := neolink.LoadRegistry(path, cfg.RegistryOptions()...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, t := range reg.Types() {
		fmt.Fprintf(out, "type %s (labels %s)\n", t.Name, strings.Join(t.Labels(), ", "))
	}
	for _, r := range reg.Relations() {
		fmt.Fprintf(out, "relation %s: %s %s -> %s %s (%s)\n",
			r.Name, r.SourceType.Name, r.SourceMultiplicity, r.TargetMultiplicity, r.TargetType.Name, r.Kind)
	}
	return nil
}

func runSchemaPrint(cmd *cobra.Command, args []string) error {
	path, err := schemaFile(args)
	if err != nil {
		return err
	}
	def, err := neolink.LoadSchema(path)
	if err != nil {
		return err
	}
	if _, err := neolink.Build(def, cfg.RegistryOptions()...); err != nil {
		return err
	}
	data, err := neolink.MarshalSchema(def)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// withManager opens the configured backend and runs fn in one transaction.
func withManager(ctx context.Context, fn func(ctx context.Context, m *neolink.Manager, s *neolink.Session) error) error {
	path, err := schemaFile(nil)
	if err != nil {
		return err
	}
	reg, err := neolink.LoadRegistry(path, cfg.RegistryOptions()...)
	if err != nil {
		return err
	}
	store, err := neolink.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	if ns, ok := store.(*neo4jgraph.Store); ok {
		labels := make([]string, 0)
		for _, t := range reg.Types() {
			labels = append(labels, t.Name)
		}
		if err := ns.EnsureIndexes(ctx, labels); err != nil {
			return err
		}
	}
	if cfg.Backend == neolink.BackendMemory || cfg.Backend == "" {
		logger.Warn("memory backend: changes are discarded when the command exits")
	}

	m := neolink.NewManager(store, reg, neolink.Options{Logger: logger})
	return m.Transact(ctx, func(ctx context.Context, s *neolink.Session) error {
		return fn(ctx, m, s)
	})
}

// parseAssignments turns key=value arguments into a property map.
func parseAssignments(args []string) (map[string]any, error) {
	props := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		props[k] = v
	}
	return props, nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	props, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	return withManager(cmd.Context(), func(ctx context.Context, m *neolink.Manager, s *neolink.Session) error {
		e, err := m.NewEntity(ctx, s, args[0], props)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), e.ID)
		return nil
	})
}

func runLink(cmd *cobra.Command, args []string) error {
	props, err := parseAssignments(args[3:])
	if err != nil {
		return err
	}
	return withManager(cmd.Context(), func(ctx context.Context, m *neolink.Manager, s *neolink.Session) error {
		source, err := m.Load(ctx, s, args[1])
		if err != nil {
			return err
		}
		target, err := m.Load(ctx, s, args[2])
		if err != nil {
			return err
		}
		edge, err := m.Link(ctx, s, args[0], source, target, props)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), edge.ID)
		return nil
	})
}

func runSet(cmd *cobra.Command, args []string) error {
	id, key, values := args[0], args[1], args[2:]
	return withManager(cmd.Context(), func(ctx context.Context, m *neolink.Manager, s *neolink.Session) error {
		owner, err := m.Load(ctx, s, id)
		if err != nil {
			return err
		}
		_, ep, isRelation := m.Registry().RelationFor(owner.Type, key)
		var value any
		switch {
		case isRelation && ep.Multiplicity() == neolink.Many:
			refs := make([]any, len(values))
			for i, v := range values {
				refs[i] = neolink.Ref{ID: v}
			}
			value = refs
		case isRelation && len(values) > 0:
			value = neolink.Ref{ID: values[0]}
		case isRelation:
			value = nil
		case len(values) > 0:
			value = strings.Join(values, " ")
		}
		return m.SetProperty(ctx, s, owner, key, value)
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	return withManager(cmd.Context(), func(ctx context.Context, m *neolink.Manager, s *neolink.Session) error {
		owner, err := m.Load(ctx, s, args[0])
		if err != nil {
			return err
		}
		v, err := m.GetProperty(ctx, s, owner, args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch x := v.(type) {
		case *neolink.Entity:
			fmt.Fprintln(out, x.ID)
		case []*neolink.Entity:
			for _, e := range x {
				fmt.Fprintln(out, e.ID)
			}
		case []string:
			fmt.Fprintln(out, strings.Join(x, "\n"))
		case nil:
		default:
			fmt.Fprintln(out, x)
		}
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withManager(cmd.Context(), func(ctx context.Context, m *neolink.Manager, s *neolink.Session) error {
		e, err := m.Load(ctx, s, args[0])
		if err != nil {
			return err
		}
		return m.Delete(ctx, s, e)
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	var g *graph.Subgraph
	err := withManager(cmd.Context(), func(ctx context.Context, m *neolink.Manager, s *neolink.Session) error {
		e, err := m.Load(ctx, s, args[0])
		if err != nil {
			return err
		}
		g, err = m.Neighbourhood(ctx, s, e)
		return err
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
