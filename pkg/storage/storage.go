// Package storage persists analyses and their computed stats in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

// Job statuses. Stats are only served to readers once the status is ready.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// ErrNotFound is returned when an analysis ID does not exist.
var ErrNotFound = fmt.Errorf("analysis not found")

// ErrNotReady is returned when stats are requested before processing finished.
var ErrNotReady = fmt.Errorf("analysis not ready")

// Analysis is one stored analysis row. Stats is populated only by ReadyStats.
type Analysis struct {
	ID               string             `json:"id"`
	Platform         chatstats.Platform `json:"platform"`
	Name             string             `json:"name"`
	Status           string             `json:"status"`
	Error            string             `json:"error,omitempty"`
	TotalMessages    int                `json:"totalMessages"`
	TotalWords       int                `json:"totalWords"`
	ParticipantCount int                `json:"participantCount"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Storage handles all database operations for analyses.
type Storage struct {
	db *sql.DB
}

// New opens (or creates) the database and brings the schema up to date.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return s.runMigrations()
}

func (s *Storage) runMigrations() error {
	currentVersion, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		for _, stmt := range m.Statements {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.Exec(stmt); err != nil && !isIgnorableMigrationError(err) {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d failed: %w", m.Version, err)
			}
		}

		now := time.Now().UnixMilli()
		if _, err := tx.Exec(`
			INSERT INTO sync_metadata (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, "schema_version", strconv.Itoa(m.Version), now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema_version for migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		currentVersion = m.Version
	}

	return nil
}

func (s *Storage) getSchemaVersion() (int, error) {
	value, err := s.GetSyncMetadata("schema_version")
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid schema_version %q: %w", value, err)
	}
	return v, nil
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate column name") ||
		strings.Contains(msg, "already exists")
}

// GetSyncMetadata returns a metadata value, or "" when unset.
func (s *Storage) GetSyncMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading metadata %q: %w", key, err)
	}
	return value, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// CreateAnalysis inserts a new pending analysis and returns it.
func (s *Storage) CreateAnalysis(ctx context.Context, platform chatstats.Platform, name string) (*Analysis, error) {
	now := time.Now()
	a := &Analysis{
		ID:        uuid.NewString(),
		Platform:  platform,
		Name:      name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, platform, name, job_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, string(a.Platform), a.Name, a.Status, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("creating analysis: %w", err)
	}
	return a, nil
}

// SaveStats overwrites the analysis stats document and the scalar summary
// columns in one statement.
func (s *Storage) SaveStats(ctx context.Context, id string, stats *chatstats.ChatStats) error {
	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET
			stats = ?,
			total_messages = ?,
			total_words = ?,
			participant_count = ?,
			updated_at = ?
		WHERE id = ?
	`, string(blob), stats.TotalMessages, stats.TotalWords, len(stats.MessagesByUser),
		time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("saving stats: %w", err)
	}
	return requireRow(res)
}

// SetStatus transitions the analysis job status and clears any prior error.
func (s *Storage) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET job_status = ?, error = NULL, updated_at = ? WHERE id = ?
	`, status, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("setting status: %w", err)
	}
	return requireRow(res)
}

// SetFailed marks the analysis failed and records the reason.
func (s *Storage) SetFailed(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET job_status = ?, error = ?, updated_at = ? WHERE id = ?
	`, StatusFailed, reason, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("marking failed: %w", err)
	}
	return requireRow(res)
}

// GetAnalysis returns the analysis row without its stats document.
func (s *Storage) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	var (
		a         Analysis
		platform  string
		name      sql.NullString
		errText   sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, platform, name, job_status, error,
		       total_messages, total_words, participant_count,
		       created_at, updated_at
		FROM analyses WHERE id = ?
	`, id).Scan(&a.ID, &platform, &name, &a.Status, &errText,
		&a.TotalMessages, &a.TotalWords, &a.ParticipantCount,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading analysis: %w", err)
	}

	a.Platform = chatstats.Platform(platform)
	a.Name = name.String
	a.Error = errText.String
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)
	return &a, nil
}

// ReadyStats returns the stats document, but only once the analysis is
// ready. Pending, processing, and failed analyses yield ErrNotReady.
func (s *Storage) ReadyStats(ctx context.Context, id string) (*chatstats.ChatStats, error) {
	var (
		status string
		blob   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT job_status, stats FROM analyses WHERE id = ?
	`, id).Scan(&status, &blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	if status != StatusReady || !blob.Valid {
		return nil, ErrNotReady
	}

	var stats chatstats.ChatStats
	if err := json.Unmarshal([]byte(blob.String), &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling stats: %w", err)
	}
	return &stats, nil
}

// ListAnalyses returns all analyses, newest first. A single query keeps it
// on one pooled connection, which matters for :memory: databases.
func (s *Storage) ListAnalyses(ctx context.Context) ([]*Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, name, job_status, error,
		       total_messages, total_words, participant_count,
		       created_at, updated_at
		FROM analyses ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		var (
			a         Analysis
			platform  string
			name      sql.NullString
			errText   sql.NullString
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&a.ID, &platform, &name, &a.Status, &errText,
			&a.TotalMessages, &a.TotalWords, &a.ParticipantCount,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		a.Platform = chatstats.Platform(platform)
		a.Name = name.String
		a.Error = errText.String
		a.CreatedAt = time.UnixMilli(createdAt)
		a.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
