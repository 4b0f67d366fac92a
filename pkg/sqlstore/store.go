// Package sqlstore implements the indexed relational backend: a SQLite
// file holding a one-row schema table of grammar tokens and a records
// table keyed on the index field.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/stratadb/strata/internal/codec"
	"github.com/stratadb/strata/pkg/schema"
	"github.com/stratadb/strata/pkg/types"
)

// maxParams is the host engine's bound-parameter cap per statement.
const maxParams = 999

const (
	schemaTable  = "schema"
	recordsTable = "records"
)

// Store is the relational backend over a single SQLite database file.
// Every task opens the database, runs, and closes it on all exit paths;
// writes are serialized through the store's single-slot queue.
type Store struct {
	path     string
	template *schema.Template
	log      zerolog.Logger

	mu       sync.Mutex
	resolved *types.Schema

	// slot is the depth-1 write queue: one Put task runs at a time,
	// independent of call concurrency.
	slot chan struct{}

	// statements counts chunked INSERTs issued over the store's lifetime.
	statements atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithTemplate declares the entry template the store's schema derives from.
func WithTemplate(t schema.Template) Option {
	return func(s *Store) { s.template = &t }
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a relational store backed by the database file at path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
		log:  zerolog.Nop(),
		slot: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// open opens the database file for one task.
func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.path+"?_busy_timeout=5000")
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed, "open database", err)
	}
	return db, nil
}

// Schema returns the resolved schema, resolving it on first use.
func (s *Store) Schema(ctx context.Context) (types.Schema, error) {
	db, err := s.open()
	if err != nil {
		return types.Schema{}, err
	}
	defer db.Close()
	return s.resolve(ctx, db)
}

// resolve reconciles the persisted schema with the declared template. On
// first-time initialization with a template, the schema and records tables
// are created atomically in one transaction.
func (s *Store) resolve(ctx context.Context, db *sql.DB) (types.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved != nil {
		return *s.resolved, nil
	}

	stored, err := s.readStored(ctx, db)
	if err != nil {
		return types.Schema{}, err
	}

	var declared *types.Schema
	if s.template != nil {
		sch, err := s.template.Schema()
		if err != nil {
			return types.Schema{}, err
		}
		declared = &sch
	}

	resolved, err := schema.Reconcile(stored, declared)
	if err != nil {
		return types.Schema{}, err
	}

	if stored == nil {
		if err := s.initTables(ctx, db, resolved); err != nil {
			return types.Schema{}, err
		}
	}

	s.resolved = &resolved
	return resolved, nil
}

// readStored loads the persisted schema from the schema table, or nil when
// the table does not exist.
func (s *Store) readStored(ctx context.Context, db *sql.DB) (*types.Schema, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", schemaTable).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed, "probe schema table", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+schemaTable+" LIMIT 1")
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed, "read schema table", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed, "schema columns", err)
	}
	if !rows.Next() {
		return nil, types.New(types.ErrCategoryDatabase, types.CodeQueryFailed, "schema table is empty")
	}
	tokens := make([]sql.NullString, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range tokens {
		dest[i] = &tokens[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed, "scan schema row", err)
	}

	doc := schema.NewDocument()
	for i, col := range cols {
		doc.Set(col, tokens[i].String)
	}
	sch, err := schema.Decode(doc)
	if err != nil {
		return nil, err
	}
	return &sch, nil
}

// initTables creates the schema and records tables in one transaction.
func (s *Store) initTables(ctx context.Context, db *sql.DB, sch types.Schema) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return types.Wrap(types.ErrCategoryDatabase, types.CodeWriteFailed, "begin init", err)
	}
	defer tx.Rollback()

	names := sch.FieldNames()
	schemaCols := make([]string, len(names))
	recordCols := make([]string, len(names))
	tokens := make([]interface{}, len(names))
	marks := make([]string, len(names))
	for i, f := range sch.Fields {
		schemaCols[i] = f.Name + " TEXT"
		recordCols[i] = f.Name + " " + affinity(f.Type)
		tokens[i] = schema.EncodeToken(f.Type, f.Name == sch.Index)
		marks[i] = "?"
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", schemaTable, strings.Join(schemaCols, ", ")),
		fmt.Sprintf("CREATE TABLE %s (%s, PRIMARY KEY (%s))",
			recordsTable, strings.Join(recordCols, ", "), sch.Index),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return types.Wrap(types.ErrCategoryDatabase, types.CodeWriteFailed, "create tables", err)
		}
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schemaTable, strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := tx.ExecContext(ctx, insert, tokens...); err != nil {
		return types.Wrap(types.ErrCategoryDatabase, types.CodeWriteFailed, "persist schema", err)
	}

	if err := tx.Commit(); err != nil {
		return types.Wrap(types.ErrCategoryDatabase, types.CodeWriteFailed, "commit init", err)
	}
	s.log.Debug().Str("path", s.path).Msg("schema initialized")
	return nil
}

// affinity maps a field type to its records column affinity.
func affinity(ft types.FieldType) string {
	switch ft.Kind {
	case types.KindBoolean, types.KindNumber, types.KindDate:
		return "NUMERIC"
	}
	return "TEXT"
}

// Fields returns the schema's field names in declaration order.
func (s *Store) Fields(ctx context.Context) ([]string, error) {
	sch, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return sch.FieldNames(), nil
}

// Get returns the entry stored under key, or nil when absent.
func (s *Store) Get(ctx context.Context, key interface{}) (types.Entry, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	sch, err := s.resolve(ctx, db)
	if err != nil {
		return nil, err
	}

	bound, err := codec.HydrateSQL(sch.IndexType(), key)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(sch.FieldNames(), ", "), recordsTable, sch.Index)
	return s.queryOne(ctx, db, sch, query, bound)
}

// First returns the entry with the smallest index value, or nil.
func (s *Store) First(ctx context.Context) (types.Entry, error) {
	return s.edge(ctx, "ASC")
}

// Last returns the entry with the largest index value, or nil.
func (s *Store) Last(ctx context.Context) (types.Entry, error) {
	return s.edge(ctx, "DESC")
}

// FirstKey returns the smallest index value, or nil.
func (s *Store) FirstKey(ctx context.Context) (interface{}, error) {
	e, err := s.First(ctx)
	return s.projectKey(ctx, e, err)
}

// LastKey returns the largest index value, or nil.
func (s *Store) LastKey(ctx context.Context) (interface{}, error) {
	e, err := s.Last(ctx)
	return s.projectKey(ctx, e, err)
}

func (s *Store) projectKey(ctx context.Context, e types.Entry, err error) (interface{}, error) {
	if err != nil || e == nil {
		return nil, err
	}
	sch, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return e[sch.Index], nil
}

func (s *Store) edge(ctx context.Context, dir string) (types.Entry, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	sch, err := s.resolve(ctx, db)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s %s LIMIT 1",
		strings.Join(sch.FieldNames(), ", "), recordsTable, sch.Index, dir)
	return s.queryOne(ctx, db, sch, query)
}

// queryOne runs a single-row query and dehydrates the row, or nil when no
// row matches.
func (s *Store) queryOne(ctx context.Context, db *sql.DB, sch types.Schema, query string, args ...interface{}) (types.Entry, error) {
	row := db.QueryRowContext(ctx, query, args...)

	cols := make([]interface{}, len(sch.Fields))
	dest := make([]interface{}, len(sch.Fields))
	for i := range cols {
		dest[i] = &cols[i]
	}
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed, "scan record", err)
	}

	e := make(types.Entry, len(sch.Fields))
	for i, f := range sch.Fields {
		v, err := codec.DehydrateSQL(f.Type, cols[i])
		if err != nil {
			return nil, err
		}
		if v != nil {
			e[f.Name] = v
		}
	}
	return e, nil
}
