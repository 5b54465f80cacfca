// Package pgstore persists graph snapshots in Postgres. Each Store call
// replaces the triples of one url inside a single transaction.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/runledger/internal/graph"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

const (
	createGraphsTableQuery = `CREATE TABLE IF NOT EXISTS graphs (
		graph_url TEXT PRIMARY KEY,
		saved_at TIMESTAMPTZ NOT NULL
	)`

	createTriplesTableQuery = `CREATE TABLE IF NOT EXISTS graph_triples (
		graph_url TEXT NOT NULL REFERENCES graphs (graph_url) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		subject TEXT NOT NULL,
		predicate TEXT NOT NULL,
		object_kind SMALLINT NOT NULL,
		object_text TEXT NOT NULL,
		object_datatype TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (graph_url, ordinal)
	)`

	selectGraphQuery = `SELECT saved_at FROM graphs WHERE graph_url = $1`

	selectTriplesQuery = `SELECT subject, predicate, object_kind, object_text, object_datatype
	 FROM graph_triples
	 WHERE graph_url = $1
	 ORDER BY ordinal ASC`

	upsertGraphQuery = `INSERT INTO graphs (graph_url, saved_at) VALUES ($1, $2)
	ON CONFLICT (graph_url) DO UPDATE SET saved_at = EXCLUDED.saved_at`

	deleteTriplesQuery = `DELETE FROM graph_triples WHERE graph_url = $1`

	insertTripleQuery = `INSERT INTO graph_triples (
		graph_url,
		ordinal,
		subject,
		predicate,
		object_kind,
		object_text,
		object_datatype
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	deleteGraphQuery = `DELETE FROM graphs WHERE graph_url = $1`
)

type Backend struct {
	db DB
}

func New(db DB) *Backend {
	if db == nil {
		return nil
	}
	return &Backend{db: db}
}

// EnsureSchema creates the snapshot tables when missing.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("graph backend not initialized")
	}
	if _, err := b.db.ExecContext(ctx, createGraphsTableQuery); err != nil {
		return fmt.Errorf("create graphs table: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, createTriplesTableQuery); err != nil {
		return fmt.Errorf("create graph_triples table: %w", err)
	}
	return nil
}

func (b *Backend) Load(ctx context.Context, url string) ([]graph.Triple, error) {
	if b == nil || b.db == nil {
		return nil, fmt.Errorf("graph backend not initialized")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("graph url is required")
	}
	var savedAt time.Time
	if err := b.db.QueryRowContext(ctx, selectGraphQuery, url).Scan(&savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, graph.ErrNoGraph
		}
		return nil, fmt.Errorf("select graph: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, selectTriplesQuery, url)
	if err != nil {
		return nil, fmt.Errorf("list triples: %w", err)
	}
	defer rows.Close()

	triples := make([]graph.Triple, 0)
	for rows.Next() {
		var t graph.Triple
		var kind int16
		if err := rows.Scan(&t.Subject, &t.Predicate, &kind, &t.Object.Text, &t.Object.Datatype); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		t.Object.Kind = graph.Kind(kind)
		triples = append(triples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list triples: %w", err)
	}
	return triples, nil
}

func (b *Backend) Store(ctx context.Context, url string, triples []graph.Triple) (err error) {
	if b == nil || b.db == nil {
		return fmt.Errorf("graph backend not initialized")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("graph url is required")
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertGraphQuery, url, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert graph: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deleteTriplesQuery, url); err != nil {
		return fmt.Errorf("clear triples: %w", err)
	}
	for i, t := range triples {
		if _, err = tx.ExecContext(ctx, insertTripleQuery,
			url,
			i,
			t.Subject,
			t.Predicate,
			int16(t.Object.Kind),
			t.Object.Text,
			t.Object.Datatype,
		); err != nil {
			return fmt.Errorf("insert triple: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, url string) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("graph backend not initialized")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("graph url is required")
	}
	res, err := b.db.ExecContext(ctx, deleteGraphQuery, url)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	if n == 0 {
		return graph.ErrNoGraph
	}
	return nil
}
