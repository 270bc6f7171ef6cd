package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/storage/migrations"
)

// DefaultHistoryLimit is used when List is called with a non-positive limit
const DefaultHistoryLimit = 50

// timeLayout is fixed width so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ExportRecord describes one exported document. Fill-in values are not
// recorded.
type ExportRecord struct {
	ID         string          `json:"id"`
	TemplateID string          `json:"template_id"`
	Title      string          `json:"title"`
	Category   models.Category `json:"category"`
	FileName   string          `json:"file_name"`
	Path       string          `json:"path"`
	Bytes      int             `json:"bytes"`
	Markers    int             `json:"markers"`
	CreatedAt  time.Time       `json:"created_at"`
}

// History is the SQLite-backed log of exported documents
type History struct {
	db   *sql.DB
	path string
}

// OpenHistory opens or creates history.db inside dataDir
func OpenHistory(dataDir string) (*History, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	h := &History{db: db, path: dbPath}
	if err := h.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.path
}

// migrate runs all pending migrations.
func (h *History) migrate(fsys fs.FS) error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := h.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_export_history.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := h.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// Record stores an export. ID and CreatedAt are filled in when empty.
func (h *History) Record(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO export_history (id, template_id, title, category, file_name, path, bytes, markers, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.TemplateID, rec.Title, string(rec.Category), rec.FileName, rec.Path,
		rec.Bytes, rec.Markers, rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return errors.StorageError("record export", err)
	}
	return nil
}

// List returns the most recent exports, newest first
func (h *History) List(ctx context.Context, limit int) ([]ExportRecord, error) {
	return h.query(ctx, `
		SELECT id, template_id, title, category, file_name, path, bytes, markers, created_at
		FROM export_history
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, normalizeLimit(limit))
}

// ListForTemplate returns the most recent exports of one template
func (h *History) ListForTemplate(ctx context.Context, templateID string, limit int) ([]ExportRecord, error) {
	return h.query(ctx, `
		SELECT id, template_id, title, category, file_name, path, bytes, markers, created_at
		FROM export_history
		WHERE template_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, templateID, normalizeLimit(limit))
}

// Count returns the number of recorded exports
func (h *History) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM export_history").Scan(&n); err != nil {
		return 0, errors.StorageError("count exports", err)
	}
	return n, nil
}

func (h *History) query(ctx context.Context, q string, args ...any) ([]ExportRecord, error) {
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.StorageError("list exports", err)
	}
	defer rows.Close()

	records := []ExportRecord{}
	for rows.Next() {
		var (
			rec       ExportRecord
			category  string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.TemplateID, &rec.Title, &category, &rec.FileName,
			&rec.Path, &rec.Bytes, &rec.Markers, &createdAt); err != nil {
			return nil, errors.StorageError("scan export", err)
		}
		rec.Category = models.Category(category)
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("list exports", err)
	}

	return records, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
