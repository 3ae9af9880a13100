package lotman

import (
	"context"
	"fmt"

	"github.com/pelicanplatform/lotman-go/internal/graph"
	"github.com/pelicanplatform/lotman-go/internal/lotctx"
	"github.com/pelicanplatform/lotman-go/internal/lotkind"
	"github.com/pelicanplatform/lotman-go/internal/lotrepo"
	"github.com/pelicanplatform/lotman-go/internal/lotstore"
	"github.com/pelicanplatform/lotman-go/internal/pathindex"
	"github.com/pelicanplatform/lotman-go/internal/policy"
	"github.com/pelicanplatform/lotman-go/internal/usageengine"
)

// Facade is the public entry point: it owns the Store and the in-memory
// PathIndex cache, and orchestrates LotRepository/GraphEngine/UsageEngine/
// PolicyEvaluator inside one transaction per call (spec.md §4.8).
type Facade struct {
	store *lotstore.Store
	index *pathindex.Index
}

// Open opens (or creates) the database at the resolved lot_home location
// and hydrates the path index. Pass dsn=":memory:" or a temp file path
// for tests; pass "" for normal lot_home-derived resolution.
func Open(ctx context.Context, dsn string) (*Facade, error) {
	store, err := lotstore.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("Function call to lotman_open failed: %w", err)
	}

	f := &Facade{store: store, index: pathindex.New()}
	if err := f.rehydrateIndex(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return f, nil
}

// Close releases the underlying Store.
func (f *Facade) Close() error {
	return f.store.Close()
}

func (f *Facade) rehydrateIndex(ctx context.Context) error {
	txn, err := f.store.BeginTx(ctx, lotstore.TxDeferred)
	if err != nil {
		return fmt.Errorf("Function call to lotman_open failed: %w", err)
	}
	defer txn.Rollback(ctx)

	repo := lotrepo.New(txn)
	if err := f.index.Hydrate(ctx, repo); err != nil {
		return fmt.Errorf("Function call to lotman_open failed: %w", err)
	}
	return nil
}

// scope bundles together one transaction's worth of layered dependencies,
// built fresh for every facade call so nothing outlives the transaction.
type scope struct {
	txn   *lotstore.Txn
	repo  *lotrepo.Repo
	graph *graph.Engine
	usage *usageengine.Engine
	pol   *policy.Evaluator
}

// withTxn runs fn inside one transaction of the given flavor, committing
// on success and rolling back on any error (including a panic, which is
// re-raised after rollback). Mirrors the original's scoped connection/
// transaction guard via Go's defer instead of RAII.
func (f *Facade) withTxn(ctx context.Context, kind lotstore.TxKind, opName string, fn func(s *scope) error) (err error) {
	txn, err := f.store.BeginTx(ctx, kind)
	if err != nil {
		return fmt.Errorf("Function call to %s failed: %w", opName, err)
	}

	committed := false
	defer func() {
		if !committed {
			txn.Rollback(ctx)
		}
	}()

	repo := lotrepo.New(txn)
	s := &scope{
		txn:   txn,
		repo:  repo,
		graph: graph.New(repo),
		usage: usageengine.New(repo, f.index, graph.New(repo)),
		pol:   policy.New(repo, graph.New(repo)),
	}

	if err := fn(s); err != nil {
		return fmt.Errorf("Function call to %s failed: %w", opName, err)
	}

	if err := txn.Commit(ctx); err != nil {
		return fmt.Errorf("Function call to %s failed: %w", opName, err)
	}
	committed = true
	return nil
}

// caller reads the current authorization principal from Context.
func caller() string {
	return lotctx.Caller()
}

func notFound(msg string) error {
	return lotkind.New(lotkind.NotFound, msg)
}

func alreadyExists(msg string) error {
	return lotkind.New(lotkind.AlreadyExists, msg)
}

func invariantViolation(msg string) error {
	return lotkind.New(lotkind.InvariantViolation, msg)
}
