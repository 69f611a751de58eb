// Package store implements the schema, migrations, typed CRUD, and
// fixed-dimension vector index for the provenance-centric document pipeline.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps the SQLite-family database holding the full provenance data
// model. The raw *sql.DB is only exposed, via DB(), to the provenance and
// retrieval packages that need to run their own prepared statements and
// transactions against it directly.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a database file at dbPath, applies pragmas, creates
// the full current schema for a fresh file, and runs any pending migrations.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536", // 64 MiB, negative = KiB
		"PRAGMA mmap_size = 268435456", // 256 MiB
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
		slog.Debug("applied pragma", "pragma", pragma)
	}

	if err := os.Chmod(dbPath, 0o600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("setting database file permissions: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("database opened", "path", dbPath, "embedding_dim", embeddingDim)
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB. Reserved for the provenance and
// retrieval packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured vector dimension (768).
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// txKey is the context key a transaction is carried under, so nested
// WithTx calls collapse to the outer transaction instead of nesting BEGINs.
type txKey struct{}

// WithTx runs fn under a write transaction. If ctx already carries a
// transaction (a nested call from within another WithTx), fn reuses it and
// only the outermost caller commits or rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	innerCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(innerCtx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting entity methods
// run against whichever is live for the current call without duplicating
// logic between transactional and non-transactional paths.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the live transaction for ctx if WithTx is on the stack,
// otherwise the plain *sql.DB.
func (s *Store) conn(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func repeatPlaceholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return "?" + repeatPlaceholders(n-1)
}

// serializeFloat32 converts a float32 slice to little-endian bytes for the
// vec0 virtual table.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat64(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
