// Package checkpoint persists pipeline progress in SQLite so a long run
// over many patients can resume after interruption. A checkpoint is a full
// graph snapshot plus the processed-patient count and a timestamp.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jafffy/medical-kg/graph"
)

// ErrNotFound is returned by Load when no checkpoint has been saved.
var ErrNotFound = errors.New("checkpoint: not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	processed_count INTEGER NOT NULL,
	graph_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store is a SQLite-backed checkpoint store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the checkpoint database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging checkpoint database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating checkpoint schema: %w", err)
	}
	db.SetMaxOpenConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot is one saved checkpoint.
type Snapshot struct {
	ProcessedCount int
	Graph          *graph.KnowledgeGraph
	CreatedAt      time.Time
}

// Save persists the current graph state and processed count.
func (s *Store) Save(ctx context.Context, g *graph.KnowledgeGraph, processedCount int) error {
	data, err := json.Marshal(g.Snapshot())
	if err != nil {
		return fmt.Errorf("marshalling graph snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO checkpoints (processed_count, graph_json, created_at) VALUES (?, ?, ?)",
		processedCount, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	return nil
}

// Load returns the most recent checkpoint, rebuilding the graph and its
// derived structures from the stored snapshot. Returns ErrNotFound when
// the store is empty.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT processed_count, graph_json, created_at FROM checkpoints ORDER BY id DESC LIMIT 1")

	var count int
	var graphJSON, createdAt string
	if err := row.Scan(&count, &graphJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var exp graph.Export
	if err := json.Unmarshal([]byte(graphJSON), &exp); err != nil {
		return nil, fmt.Errorf("unmarshalling checkpoint graph: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		ts = time.Time{}
	}

	return &Snapshot{
		ProcessedCount: count,
		Graph:          graph.Import(&exp),
		CreatedAt:      ts,
	}, nil
}

// Prune deletes all but the most recent n checkpoints.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM checkpoints WHERE id NOT IN (SELECT id FROM checkpoints ORDER BY id DESC LIMIT ?)",
		keep)
	if err != nil {
		return fmt.Errorf("pruning checkpoints: %w", err)
	}
	return nil
}
