package dataset

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teranos/picar"
)

// ManifestFile is the default manifest name inside a dataset directory.
const ManifestFile = "manifest.db"

// timeFormat is fixed width so text order is time order.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	file_name      TEXT PRIMARY KEY,
	captured_at    TEXT NOT NULL,
	steering_angle INTEGER NOT NULL,
	speed          INTEGER NOT NULL,
	direction      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_captured_at ON samples (captured_at);
`

// Manifest indexes saved samples in SQLite.
type Manifest struct {
	sqlDB *sql.DB
}

// Entry is one manifest row.
type Entry struct {
	FileName      string
	CapturedAt    time.Time
	SteeringAngle int
	Speed         int
	Direction     string
}

// OpenManifest opens (or creates) the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("manifest path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Manifest{sqlDB: sqlDB}, nil
}

// Record stores the sample saved under name.
func (m *Manifest) Record(name string, s picar.CapturedSample) error {
	if m == nil || m.sqlDB == nil {
		return fmt.Errorf("manifest is not open")
	}
	_, err := m.sqlDB.Exec(
		`INSERT OR REPLACE INTO samples (file_name, captured_at, steering_angle, speed, direction) VALUES (?, ?, ?, ?, ?)`,
		name, s.Timestamp.UTC().Format(timeFormat), s.SteeringAngle, s.Speed, s.Direction.String(),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	return nil
}

// Entries returns all rows in capture order.
func (m *Manifest) Entries() ([]Entry, error) {
	rows, err := m.sqlDB.Query(`SELECT file_name, captured_at, steering_angle, speed, direction FROM samples ORDER BY captured_at`)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.FileName, &at, &e.SteeringAngle, &e.Speed, &e.Direction); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if e.CapturedAt, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("parse captured_at %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of recorded samples.
func (m *Manifest) Count() (int, error) {
	var n int
	if err := m.sqlDB.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (m *Manifest) Close() error {
	if m == nil || m.sqlDB == nil {
		return nil
	}
	return m.sqlDB.Close()
}
