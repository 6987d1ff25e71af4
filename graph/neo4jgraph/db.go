// Package neo4jgraph implements graph.Store on Neo4j using the official Go
// driver. Every node and relationship carries an `id` property holding the
// UUID the relation engine addresses it by.
package neo4jgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DBRunner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests.
type DBRunner interface {
	// Run executes a given Cypher query with parameters and returns a fully-buffered result.
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// DBTx is a DBRunner bound to an explicit transaction.
type DBTx interface {
	DBRunner
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner opens explicit transactions. Executor is the driver-backed implementation.
type TxBeginner interface {
	BeginTx(ctx context.Context) (DBTx, error)
}

//---

// Executor is a concrete implementation of DBRunner and TxBeginner that uses the
// official Neo4j Go driver. It manages the driver instance and the target database name.
type Executor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewExecutor creates and initializes a new Executor.
// It establishes a connection driver with the provided credentials.
//
// Parameters:
//   - uri: The connection URI for the Neo4j instance (e.g., "neo4j://localhost:7687").
//   - username: The username for authentication.
//   - password: The password for authentication.
//   - dbName: The name of the database to connect to (e.g., "neo4j").
func NewExecutor(uri, username, password, dbName string) (*Executor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Executor{Driver: driver, DBName: dbName}, nil
}

// Verify checks the connectivity to the Neo4j database.
func (e *Executor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Close closes the underlying driver.
func (e *Executor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// Run executes a Cypher query outside any explicit transaction using
// ExecuteQuery, which handles session and retry management automatically.
func (e *Executor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)

	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}

	return result, nil
}

// BeginTx opens a session and an explicit transaction on it. The session is
// closed when the transaction commits or rolls back.
func (e *Executor) BeginTx(ctx context.Context) (DBTx, error) {
	session := e.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: e.DBName})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, fmt.Errorf("beginning neo4j transaction: %w", err)
	}
	return &explicitTx{session: session, tx: tx}, nil
}

type explicitTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
}

func (t *explicitTx) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading neo4j result: %w", err)
	}
	keys, _ := result.Keys()
	return &neo4j.EagerResult{Keys: keys, Records: records}, nil
}

func (t *explicitTx) Commit(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Commit(ctx)
}

func (t *explicitTx) Rollback(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Rollback(ctx)
}
