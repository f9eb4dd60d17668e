package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"magpie/internal/config"
	"magpie/internal/faults"
)

// Store manages the append-only record of completed downloads, backed by
// SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	sqliteConstraintCode    = 19
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    folder TEXT NOT NULL UNIQUE,
    path TEXT NOT NULL,
    created_at TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    title TEXT,
    platform TEXT,
    content_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_created_at ON ledger_entries(created_at);`
	if err := s.execWithoutResultRetry(ctx, schema); err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record appends one entry. Each terminal job records at most once; the
// unique folder constraint backs that up, and a duplicate folder surfaces
// as an invalid-input error so callers do not retry it.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.Folder) == "" {
		return fmt.Errorf("%w: ledger entry requires folder", faults.ErrInvalidInput)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO ledger_entries (folder, path, created_at, size, title, platform, content_type)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Folder,
		entry.Path,
		createdAt.Format(time.RFC3339Nano),
		entry.Size,
		nullableString(entry.Title),
		nullableString(entry.Platform),
		nullableString(entry.ContentType),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return fmt.Errorf("%w: ledger entry %q already recorded", faults.ErrInvalidInput, entry.Folder)
		}
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// List returns all entries ordered newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, folder, path, created_at, size, title, platform, content_type
         FROM ledger_entries
         ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// Get returns the entry for a folder.
func (s *Store) Get(ctx context.Context, folder string) (Entry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, folder, path, created_at, size, title, platform, content_type
         FROM ledger_entries WHERE folder = ?`, folder)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: ledger entry %q", faults.ErrNotFound, folder)
		}
		return Entry{}, err
	}
	return entry, nil
}

// Delete removes an entry and its backing artifact directory. A folder with
// no entry returns the not-found marker and leaves the ledger unmodified.
func (s *Store) Delete(ctx context.Context, folder string) error {
	entry, err := s.Get(ctx, folder)
	if err != nil {
		return err
	}

	if strings.TrimSpace(entry.Path) != "" {
		if err := os.RemoveAll(entry.Path); err != nil {
			return fmt.Errorf("remove artifact directory %q: %w", entry.Path, err)
		}
	}

	if err := s.execWithoutResultRetry(ctx,
		`DELETE FROM ledger_entries WHERE folder = ?`, folder); err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	return nil
}

// Stats returns aggregate counts for status output.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM ledger_entries`)
	var stats Stats
	if err := row.Scan(&stats.Entries, &stats.TotalSize); err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	return stats, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		createdAt   string
		title       sql.NullString
		platform    sql.NullString
		contentType sql.NullString
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Folder,
		&entry.Path,
		&createdAt,
		&entry.Size,
		&title,
		&platform,
		&contentType,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan ledger entry: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse ledger timestamp %q: %w", createdAt, err)
	}
	entry.CreatedAt = parsed
	entry.Title = title.String
	entry.Platform = platform.String
	entry.ContentType = contentType.String
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isSQLiteConstraint(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteConstraintCode {
		return true
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
