// Package sqlitegraph implements graph.Store on SQLite using the pure-Go
// modernc.org/sqlite driver. Labels and properties are stored as JSON text.
package sqlitegraph

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// Store implements graph.Store using SQLite
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at dbPath and applies
// the schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection: pragmas are per connection and SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Begin starts a database transaction.
func (s *Store) Begin(ctx context.Context) (graph.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: sqlTx}, nil
}

// Close closes the SQLite connection
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// Tx is a graph.Tx backed by a *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Node(ctx context.Context, id string) (*graph.Node, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, labels, properties FROM nodes WHERE id = ?`, id)

	var labelsJSON, propsJSON string
	n := &graph.Node{}
	if err := row.Scan(&n.ID, &labelsJSON, &propsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
		}
		return nil, fmt.Errorf("scanning node: %w", err)
	}
	if err := json.Unmarshal([]byte(labelsJSON), &n.Labels); err != nil {
		return nil, fmt.Errorf("unmarshaling labels: %w", err)
	}
	props, err := decodeProps(propsJSON)
	if err != nil {
		return nil, err
	}
	n.Props = props
	return n, nil
}

func (t *Tx) CreateNode(ctx context.Context, labels []string, props map[string]any) (*graph.Node, error) {
	if labels == nil {
		labels = []string{}
	}
	if props == nil {
		props = map[string]any{}
	}
	n := &graph.Node{ID: uuid.New().String(), Labels: labels, Props: maps.Clone(props)}

	labelsJSON, err := json.Marshal(n.Labels)
	if err != nil {
		return nil, fmt.Errorf("marshaling labels: %w", err)
	}
	propsJSON, err := json.Marshal(n.Props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO nodes (id, labels, properties, created_at) VALUES (?, ?, ?, ?)`,
		n.ID, string(labelsJSON), string(propsJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting node: %w", err)
	}
	return n, nil
}

func (t *Tx) SetNodeProperties(ctx context.Context, id string, props map[string]any) error {
	n, err := t.Node(ctx, id)
	if err != nil {
		return err
	}
	maps.Copy(n.Props, props)
	propsJSON, err := json.Marshal(n.Props)
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE nodes SET properties = ? WHERE id = ?`, string(propsJSON), id); err != nil {
		return fmt.Errorf("updating node: %w", err)
	}
	return nil
}

func (t *Tx) DeleteNode(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("deleting node edges: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	return nil
}

func (t *Tx) Edges(ctx context.Context, nodeID string, dir graph.Direction, relType string) ([]*graph.Edge, error) {
	var where string
	var args []any
	switch dir {
	case graph.Outgoing:
		where, args = "source_id = ?", []any{nodeID}
	case graph.Incoming:
		where, args = "target_id = ?", []any{nodeID}
	default:
		where, args = "(source_id = ? OR target_id = ?)", []any{nodeID, nodeID}
	}
	if relType != "" {
		where += " AND type = ?"
		args = append(args, relType)
	}

	query := `SELECT id, type, source_id, target_id, properties FROM edges WHERE ` + where + ` ORDER BY seq`
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []*graph.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (t *Tx) CreateEdge(ctx context.Context, relType, startID, endID string, props map[string]any) (*graph.Edge, error) {
	for _, id := range []string{startID, endID} {
		if _, err := t.Node(ctx, id); err != nil {
			return nil, err
		}
	}
	if props == nil {
		props = map[string]any{}
	}
	e := &graph.Edge{
		ID:      uuid.New().String(),
		Type:    relType,
		StartID: startID,
		EndID:   endID,
		Props:   maps.Clone(props),
	}
	propsJSON, err := json.Marshal(e.Props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO edges (id, type, source_id, target_id, properties, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Type, e.StartID, e.EndID, string(propsJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting edge: %w", err)
	}
	return e, nil
}

func (t *Tx) SetEdgeProperties(ctx context.Context, edgeID string, props map[string]any) error {
	row := t.tx.QueryRowContext(ctx, `SELECT properties FROM edges WHERE id = ?`, edgeID)
	var propsJSON string
	if err := row.Scan(&propsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, edgeID)
		}
		return fmt.Errorf("scanning edge: %w", err)
	}
	current, err := decodeProps(propsJSON)
	if err != nil {
		return err
	}
	maps.Copy(current, props)
	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE edges SET properties = ?, modified_at = ? WHERE id = ?`,
		string(merged), time.Now().UTC().Format(time.RFC3339), edgeID)
	if err != nil {
		return fmt.Errorf("updating edge: %w", err)
	}
	return nil
}

func (t *Tx) DeleteEdge(ctx context.Context, edgeID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, edgeID)
	if err != nil {
		return fmt.Errorf("deleting edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, edgeID)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return graph.ErrTxDone
		}
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return graph.ErrTxDone
		}
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func scanEdge(rows *sql.Rows) (*graph.Edge, error) {
	var propsJSON string
	e := &graph.Edge{}
	if err := rows.Scan(&e.ID, &e.Type, &e.StartID, &e.EndID, &propsJSON); err != nil {
		return nil, fmt.Errorf("scanning edge: %w", err)
	}
	props, err := decodeProps(propsJSON)
	if err != nil {
		return nil, err
	}
	e.Props = props
	return e, nil
}

// decodeProps unmarshals a JSON property column. Integral numbers come back as
// int64 and other numbers as float64, so values written as Go ints survive.
func decodeProps(s string) (map[string]any, error) {
	props := map[string]any{}
	if s == "" {
		return props, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	for k, v := range props {
		props[k] = normalize(v)
	}
	return props, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	default:
		return v
	}
}
