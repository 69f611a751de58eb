package veridoc

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/veridoc/veridoc-core/store"
)

// Session holds the process-wide selected database and config snapshot.
// Exactly one database is selected at a time; Select/Create/Clear replace
// that selection atomically so a reader never observes a half-closed or
// half-opened handle.
//
// Unlike the file lock a *store.Store itself takes out implicitly via
// SQLite's own locking, the flock guarded here is a cooperative session
// marker: it tells a second process attempting to select the same database
// that another session already holds it selected, before that process ever
// opens the SQLite file.
type Session struct {
	mu sync.Mutex

	cfg  Config
	name string
	db   *store.Store
	lock *flock.Flock
}

// NewSession starts an unselected session with cfg as its initial config
// snapshot.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Config returns the current config snapshot.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Configure replaces the config snapshot. This is a reference replacement,
// not a field mutation: operations already in flight keep the Config value
// they read at their own start.
func (s *Session) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// dbPath resolves name to an absolute path under the session's configured
// storage root, appending .db if the caller passed a bare name.
func (s *Session) dbPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if filepath.Ext(name) != ".db" {
		name += ".db"
	}
	return filepath.Join(s.cfg.DefaultStoragePath, name)
}

// Select opens the named database and makes it current, verifying it is
// healthy (store.New succeeds — the file opens, pragmas apply, schema
// exists or is created) before touching the previous selection. On success
// the previous store is closed and its lock released after the new one is
// in place (atomic replace); on failure the previous selection is left
// completely untouched.
func (s *Session) Select(name string) error {
	path := s.dbPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Errorf(CategoryPermissionDenied, "creating storage directory for %s: %v", name, err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return Errorf(CategoryInternal, "acquiring session lock for %s: %v", name, err).WithCause(err)
	}
	if !locked {
		return Errorf(CategoryDatabaseAlreadyExists,
			"database %s is already selected by another session", name)
	}

	db, err := store.New(path, s.embeddingDim())
	if err != nil {
		_ = lock.Unlock()
		return Errorf(CategoryDatabaseNotFound, "opening database %s: %v", name, err).WithCause(err)
	}

	s.mu.Lock()
	prevDB, prevLock := s.db, s.lock
	s.db, s.lock, s.name = db, lock, name
	s.mu.Unlock()

	if prevDB != nil {
		_ = prevDB.Close()
	}
	if prevLock != nil {
		_ = prevLock.Unlock()
	}
	return nil
}

// Create makes a new database at name, failing if one already exists there
// unless force is set. On success it auto-selects the new database
// (closing and unlocking the previous selection); on failure the previous
// selection, if any, is left untouched.
func (s *Session) Create(name string, force bool) error {
	path := s.dbPath(name)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return Errorf(CategoryDatabaseAlreadyExists, "database %s already exists", name)
		}
	}
	return s.Select(name)
}

// Clear closes the current selection, if any, releasing its session lock.
func (s *Session) Clear() error {
	s.mu.Lock()
	db, lock := s.db, s.lock
	s.db, s.lock, s.name = nil, nil, ""
	s.mu.Unlock()

	var closeErr error
	if db != nil {
		closeErr = db.Close()
	}
	if lock != nil {
		_ = lock.Unlock()
	}
	if closeErr != nil {
		return fmt.Errorf("closing selected database: %w", closeErr)
	}
	return nil
}

// Require returns the currently selected store, or a database_not_selected
// error if nothing is selected. Vector search lives on the same handle
// (store.Store exposes both the relational and vector virtual tables over
// one connection), so a single return value covers what the session model
// calls "(store, vector)".
func (s *Session) Require() (*store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, NewError(CategoryDatabaseNotSelected, "no database is selected; call Select or Create first")
	}
	return s.db, nil
}

// Selected returns the name of the currently selected database, or "" if
// none is selected.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) embeddingDim() int {
	return 768
}
