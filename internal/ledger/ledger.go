// Package ledger persists reported interaction outcomes in a SQLite database,
// optionally encrypted with SQLCipher.
package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kuitang/webact/internal/errs"
	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
	"github.com/kuitang/webact/internal/report"
)

const (
	// KeySize is the SQLCipher raw key length in bytes.
	KeySize = 32

	// SQLite is single-writer, so high connection counts are counterproductive.
	maxOpenConns = 4
	maxIdleConns = 1
)

// Ledger is an append-only store of report entries.
type Ledger struct {
	db *sql.DB
}

// RunSummary aggregates the entries of one run.
type RunSummary struct {
	RunID    string
	Passed   int
	Failed   int
	Started  time.Time
	Finished time.Time
}

// ParseKey decodes a hex-encoded SQLCipher key. An empty string means no encryption.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "ledger: key is not hex", err)
	}
	if len(key) != KeySize {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("ledger: key must be %d bytes, got %d", KeySize, len(key)))
	}
	return key, nil
}

// Open opens or creates the ledger at path. A non-nil key encrypts the file with
// SQLCipher; opening an encrypted ledger with the wrong key fails.
func Open(ctx context.Context, path string, key []byte) (*Ledger, error) {
	if key != nil && len(key) != KeySize {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("ledger: key must be %d bytes, got %d", KeySize, len(key)))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("ledger: failed to create directory: %w", err)
		}
	}

	dsn := path
	if key != nil {
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, hex.EncodeToString(key))
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	db, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to open %s: %w", path, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	// With a wrong key this is the first statement to fail.
	var sqliteVersion string
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(new(int)); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Unavailable, "ledger: cannot read "+path+" (wrong key?)", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to verify connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to initialize schema: %w", err)
	}

	obs.Pkg("ledger").Info("ledger opened", "path", path, "encrypted", key != nil, "sqlite_version", sqliteVersion)
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Append stores one entry.
func (l *Ledger) Append(ctx context.Context, e report.Entry) error {
	var png []byte
	url := ""
	if e.Evidence != nil {
		png = e.Evidence.PNG
		url = e.Evidence.URL
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO entries (id, run_id, test, browser, pass, message, evidence_url, evidence_bytes, evidence_sha3, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, sha3(?, 256), ?)`,
		e.ID, e.RunID, e.Test, e.Browser, e.Pass, e.Message, url, len(png), nullable(png), e.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("ledger: failed to append entry %s: %w", e.ID, err)
	}
	return nil
}

// ListRun returns the entries of runID in the order they were reported. Stored
// evidence comes back as its URL only.
func (l *Ledger) ListRun(ctx context.Context, runID string) ([]report.Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, test, browser, pass, message, evidence_url, created_at
		FROM entries WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to list run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []report.Entry
	for rows.Next() {
		var (
			e       report.Entry
			url     string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Test, &e.Browser, &e.Pass, &e.Message, &url, &created); err != nil {
			return nil, fmt.Errorf("ledger: failed to scan entry: %w", err)
		}
		e.Time = time.Unix(0, created).UTC()
		if url != "" {
			e.Evidence = &interact.Evidence{URL: url}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EvidenceDigest returns the SHA3-256 digest of the screenshot stored with entry id,
// or nil when the entry had no screenshot.
func (l *Ledger) EvidenceDigest(ctx context.Context, id string) ([]byte, error) {
	var digest []byte
	err := l.db.QueryRowContext(ctx, `SELECT evidence_sha3 FROM entries WHERE id = ?`, id).Scan(&digest)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "ledger: no entry "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read digest for %s: %w", id, err)
	}
	return digest, nil
}

// Summaries returns one summary per run, most recent first.
func (l *Ledger) Summaries(ctx context.Context) ([]RunSummary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id,
		       SUM(CASE WHEN pass THEN 1 ELSE 0 END),
		       SUM(CASE WHEN pass THEN 0 ELSE 1 END),
		       MIN(created_at), MAX(created_at)
		FROM entries GROUP BY run_id ORDER BY MIN(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to summarise runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s               RunSummary
			started, finish int64
		)
		if err := rows.Scan(&s.RunID, &s.Passed, &s.Failed, &started, &finish); err != nil {
			return nil, fmt.Errorf("ledger: failed to scan summary: %w", err)
		}
		s.Started = time.Unix(0, started).UTC()
		s.Finished = time.Unix(0, finish).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func sqliteCommonParams() string {
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
