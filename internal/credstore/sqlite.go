package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credentials_expires_at ON credentials(expires_at);
`

// SQLiteBackend is a durable Backend on a local SQLite database with WAL
// mode enabled. The writer connection is limited to a single connection to
// avoid "database is locked" errors; reads go through a small pool.
//
// Expired rows are filtered on read and reaped by a background goroutine,
// so expiry does not depend on anything ever rewriting the row.
type SQLiteBackend struct {
	writer *sql.DB
	reader *sql.DB
	logger *slog.Logger

	reapInterval time.Duration
	stopReaper   chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewSQLiteBackend opens (creating if needed) the database at dbPath and
// ensures the credentials schema exists.
func NewSQLiteBackend(dbPath string, logger *slog.Logger) (*SQLiteBackend, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		dbPath,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	if _, err := writer.Exec(sqliteSchema); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	b := &SQLiteBackend{
		writer:       writer,
		reader:       reader,
		logger:       logger,
		reapInterval: 5 * time.Minute,
		stopReaper:   make(chan struct{}),
	}

	b.wg.Add(1)
	go b.reapLoop()

	return b, nil
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := b.reader.QueryRowContext(ctx,
		`SELECT value, expires_at FROM credentials WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query credential: %w", err)
	}

	if expiresAt > 0 && time.Now().Unix() > expiresAt {
		return nil, false, nil
	}
	return value, true, nil
}

// Set implements Backend.
func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}

	_, err := b.writer.ExecContext(ctx,
		`INSERT INTO credentials (key, value, expires_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, value, expiresAt, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.writer.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// Close stops the reaper and closes both connections. Returns the first
// error encountered.
func (b *SQLiteBackend) Close() error {
	b.stopOnce.Do(func() {
		close(b.stopReaper)
	})
	b.wg.Wait()

	var firstErr error
	if err := b.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := b.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}

// reapLoop periodically deletes expired rows.
func (b *SQLiteBackend) reapLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := b.writer.Exec(
				`DELETE FROM credentials WHERE expires_at > 0 AND expires_at < ?`,
				time.Now().Unix(),
			)
			if err != nil {
				b.logger.Warn("failed to reap expired credentials", "error", err)
				continue
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				b.logger.Debug("reaped expired credentials", "count", n)
			}
		case <-b.stopReaper:
			return
		}
	}
}
