// Package store persists documents in SQLite and publishes lifecycle events.
// It is the reference persistence collaborator of the document layer: plain
// serialized records in, plain serialized records out, no transport handles
// retained by the core.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/document"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrNotFound reports a missing (document name, id) pair.
var ErrNotFound = errors.New("store: document not found")

// dbRunner abstracts *sql.DB and *sql.Tx so the same statements serve
// transactional and non-transactional paths.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	name TEXT NOT NULL,
	id   TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (name, id)
);`

// DocumentStore persists serialized documents keyed by (type name, id).
type DocumentStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *zap.Logger
	bus    *Bus
}

// StoreOption configures a store.
type StoreOption func(*DocumentStore)

// WithLogger attaches a logger for persistence diagnostics.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *DocumentStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBus publishes lifecycle events for every mutation.
func WithBus(b *Bus) StoreOption {
	return func(s *DocumentStore) { s.bus = b }
}

// Open opens (or creates) a SQLite-backed store at path. Use ":memory:" for
// an ephemeral store.
func Open(path string, opts ...StoreOption) (*DocumentStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &DocumentStore{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *DocumentStore) Close() error { return s.db.Close() }

func (s *DocumentStore) runner() dbRunner {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// WithTx runs fn against a transactional view of the store, committing on nil
// and rolling back on error.
func (s *DocumentStore) WithTx(ctx context.Context, fn func(tx *DocumentStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	scoped := &DocumentStore{db: s.db, tx: tx, logger: s.logger, bus: s.bus}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// Create persists a new document, assigning an id when the document has none.
func (s *DocumentStore) Create(ctx context.Context, m *document.DataModel) error {
	if m.ID() == "" {
		if err := m.UpdateSource(map[string]any{"_id": datamodel.GenerateID()}); err != nil {
			return fmt.Errorf("store: assign id: %w", err)
		}
	}
	record := m.ToObject(true)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: marshal %s %s: %w", m.DocumentName(), m.ID(), err)
	}
	_, err = s.runner().ExecContext(ctx,
		`INSERT INTO documents (name, id, data) VALUES (?, ?, ?)`,
		m.DocumentName(), m.ID(), string(data))
	if err != nil {
		return fmt.Errorf("store: create %s %s: %w", m.DocumentName(), m.ID(), err)
	}
	s.logger.Debug("created document",
		zap.String("document", m.DocumentName()), zap.String("id", m.ID()))
	s.bus.emit(Event{Type: EventCreated, Document: m.DocumentName(), IDs: []string{m.ID()}, Records: []map[string]any{record}})
	return nil
}

// Get loads and reconstructs one document.
func (s *DocumentStore) Get(ctx context.Context, t *document.Type, id string) (*document.DataModel, error) {
	var data string
	err := s.runner().QueryRowContext(ctx,
		`SELECT data FROM documents WHERE name = ? AND id = ?`, t.Name(), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %s %q: %w", t.Name(), id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s %q: %w", t.Name(), id, err)
	}
	return document.FromJSON(t, []byte(data), nil)
}

// Update applies a sparse change set to a live document and persists the
// result. The document is untouched when validation or persistence fails.
func (s *DocumentStore) Update(ctx context.Context, m *document.DataModel, changes map[string]any) error {
	if err := m.UpdateSource(changes); err != nil {
		return err
	}
	record := m.ToObject(true)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: marshal %s %s: %w", m.DocumentName(), m.ID(), err)
	}
	res, err := s.runner().ExecContext(ctx,
		`UPDATE documents SET data = ? WHERE name = ? AND id = ?`,
		string(data), m.DocumentName(), m.ID())
	if err != nil {
		return fmt.Errorf("store: update %s %s: %w", m.DocumentName(), m.ID(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: %s %q: %w", m.DocumentName(), m.ID(), ErrNotFound)
	}
	s.bus.emit(Event{Type: EventUpdated, Document: m.DocumentName(), IDs: []string{m.ID()}, Records: []map[string]any{record}})
	return nil
}

// Delete removes one document.
func (s *DocumentStore) Delete(ctx context.Context, documentName, id string) error {
	res, err := s.runner().ExecContext(ctx,
		`DELETE FROM documents WHERE name = ? AND id = ?`, documentName, id)
	if err != nil {
		return fmt.Errorf("store: delete %s %q: %w", documentName, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: %s %q: %w", documentName, id, ErrNotFound)
	}
	s.bus.emit(Event{Type: EventDeleted, Document: documentName, IDs: []string{id}})
	return nil
}

// List reconstructs every stored document of one type, in id order. Records
// that no longer construct cleanly are skipped with a warning rather than
// failing the whole listing.
func (s *DocumentStore) List(ctx context.Context, t *document.Type) ([]*document.DataModel, error) {
	rows, err := s.runner().QueryContext(ctx,
		`SELECT id, data FROM documents WHERE name = ? ORDER BY id`, t.Name())
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", t.Name(), err)
	}
	defer rows.Close()

	var out []*document.DataModel
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("store: scan %s row: %w", t.Name(), err)
		}
		m, err := document.FromJSON(t, []byte(data), nil)
		if err != nil {
			s.logger.Warn("skipping unreadable document",
				zap.String("document", t.Name()),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
