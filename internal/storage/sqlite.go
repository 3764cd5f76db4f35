// Package storage keeps the build manifest: a SQLite record of every build,
// the resources it parsed, the redirects and errors it met and the files it
// produced.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"

	"github.com/masahif/hondana/internal/resource"
	"github.com/masahif/hondana/internal/spider"
)

// ErrBuildNotFound is returned when a build id is unknown
var ErrBuildNotFound = errors.New("build not found")

// SQLiteStorage is the manifest database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates the manifest at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}
	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Build records the events of one build. It implements spider.Recorder;
// recording failures are logged and never abort the build.
type Build struct {
	ID      string
	storage *SQLiteStorage
}

var _ spider.Recorder = (*Build)(nil)

// BeginBuild inserts a running build for source
func (s *SQLiteStorage) BeginBuild(source string) (*Build, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO builds (id, source, status, started_at) VALUES (?, ?, ?, ?)",
		id, source, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to begin build: %w", err)
	}
	if err := s.SetMeta("last_build_id", id); err != nil {
		return nil, err
	}
	return &Build{ID: id, storage: s}, nil
}

// RecordResource saves a parsed resource. A resource recorded twice keeps
// its first row.
func (b *Build) RecordResource(attribs *resource.Attributes, depth int) {
	relations, err := json.Marshal(attribs.Relations.Strings())
	if err != nil {
		slog.Error("Failed to marshal relations", "url", attribs.URL, "error", err)
		return
	}

	_, err = b.storage.db.Exec(`
		INSERT OR IGNORE INTO resources (
			build_id, url, orig_url, media_type, relations, referrer, depth, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID,
		attribs.URL,
		attribs.OrigURL,
		attribs.EffectiveMediaType().Type,
		string(relations),
		attribs.Referrer,
		depth,
		time.Now().UTC(),
	)
	if err != nil {
		slog.Error("Failed to record resource", "build_id", b.ID, "url", attribs.URL, "error", err)
	}
}

// RecordRedirect saves a requested -> served URL pair
func (b *Build) RecordRedirect(from, to string) {
	_, err := b.storage.db.Exec(
		"INSERT OR REPLACE INTO redirects (build_id, from_url, to_url) VALUES (?, ?, ?)",
		b.ID, from, to,
	)
	if err != nil {
		slog.Error("Failed to record redirect", "build_id", b.ID, "from", from, "error", err)
	}
}

// RecordError saves a resource failure
func (b *Build) RecordError(url, errorType, message string) {
	_, err := b.storage.db.Exec(`
		INSERT INTO build_errors (build_id, url, error_type, error_message, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, url, errorType, message, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to record error", "build_id", b.ID, "url", url, "error", err)
	}
}

// RecordOutput saves a file produced by a writer
func (b *Build) RecordOutput(format, path string) error {
	_, err := b.storage.db.Exec(
		"INSERT INTO outputs (build_id, format, path, created_at) VALUES (?, ?, ?, ?)",
		b.ID, format, path, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record output: %w", err)
	}
	return nil
}

// Finish marks the build completed, or failed with buildErr's message
func (b *Build) Finish(buildErr error) error {
	status, message := StatusCompleted, ""
	if buildErr != nil {
		status, message = StatusFailed, buildErr.Error()
	}

	_, err := b.storage.db.Exec(`
		UPDATE builds SET status = ?, finished_at = ?, error_message = ?
		WHERE id = ?
	`, status, time.Now().UTC(), message, b.ID)
	if err != nil {
		return fmt.Errorf("failed to finish build: %w", err)
	}
	return nil
}

// GetBuild returns one build
func (s *SQLiteStorage) GetBuild(id string) (*BuildInfo, error) {
	var info BuildInfo
	var finished sql.NullTime
	var message sql.NullString

	err := s.db.QueryRow(`
		SELECT id, source, status, started_at, finished_at, error_message
		FROM builds WHERE id = ?
	`, id).Scan(&info.ID, &info.Source, &info.Status, &info.StartedAt, &finished, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}

	if finished.Valid {
		info.FinishedAt = &finished.Time
	}
	info.ErrorMessage = message.String
	return &info, nil
}

// Summary returns the counts recorded for a build
func (s *SQLiteStorage) Summary(id string) (*BuildSummary, error) {
	info, err := s.GetBuild(id)
	if err != nil {
		return nil, err
	}

	summary := &BuildSummary{BuildInfo: *info}
	err = s.db.QueryRow(`
		SELECT resources, redirects, errors, outputs
		FROM build_summary WHERE id = ?
	`, id).Scan(&summary.Resources, &summary.Redirects, &summary.Errors, &summary.Outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to get build summary: %w", err)
	}
	return summary, nil
}

// Resources returns the resources of a build in recording order
func (s *SQLiteStorage) Resources(buildID string) ([]ResourceRecord, error) {
	rows, err := s.db.Query(`
		SELECT url, orig_url, media_type, relations, referrer, depth
		FROM resources WHERE build_id = ? ORDER BY id
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []ResourceRecord
	for rows.Next() {
		var r ResourceRecord
		var origURL, mediaType, relations, referrer sql.NullString
		if err := rows.Scan(&r.URL, &origURL, &mediaType, &relations, &referrer, &r.Depth); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.OrigURL = origURL.String
		r.MediaType = mediaType.String
		r.Referrer = referrer.String
		if relations.String != "" {
			if err := json.Unmarshal([]byte(relations.String), &r.Relations); err != nil {
				return nil, fmt.Errorf("failed to unmarshal relations of %s: %w", r.URL, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Redirects returns the requested -> served mapping of a build
func (s *SQLiteStorage) Redirects(buildID string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT from_url, to_url FROM redirects WHERE build_id = ?", buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query redirects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	redirects := make(map[string]string)
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan redirect: %w", err)
		}
		redirects[from] = to
	}
	return redirects, rows.Err()
}

// Errors returns the failures of a build in order
func (s *SQLiteStorage) Errors(buildID string) ([]ErrorRecord, error) {
	rows, err := s.db.Query(`
		SELECT url, error_type, error_message, occurred_at
		FROM build_errors WHERE build_id = ? ORDER BY id
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []ErrorRecord
	for rows.Next() {
		var r ErrorRecord
		var message sql.NullString
		if err := rows.Scan(&r.URL, &r.ErrorType, &message, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}
		r.ErrorMessage = message.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Outputs returns the files produced by a build
func (s *SQLiteStorage) Outputs(buildID string) ([]OutputRecord, error) {
	rows, err := s.db.Query(`
		SELECT format, path, created_at
		FROM outputs WHERE build_id = ? ORDER BY id
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []OutputRecord
	for rows.Next() {
		var r OutputRecord
		if err := rows.Scan(&r.Format, &r.Path, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM manifest_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO manifest_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}
