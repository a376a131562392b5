package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the shadow ticket database and applies the schema.
func InitDB(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; upserts stay atomic without table locks.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		reporter_id       TEXT NOT NULL,
		remote_id         TEXT NOT NULL,
		category          TEXT NOT NULL,
		severity          TEXT NOT NULL,
		summary_text      TEXT NOT NULL DEFAULT '',
		local_created_at  DATETIME NOT NULL,
		last_known_status TEXT NOT NULL DEFAULT 'unknown',
		updated_at        DATETIME,
		PRIMARY KEY (reporter_id, remote_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_reporter_created ON tickets(reporter_id, local_created_at);
	CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(last_known_status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Migration: databases created before updated_at existed.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('tickets') WHERE name = 'updated_at'`).Scan(&colCount)
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE tickets ADD COLUMN updated_at DATETIME`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add updated_at column: %w", err)
		}
		_, _ = db.Exec(`UPDATE tickets SET updated_at = local_created_at WHERE updated_at IS NULL`)
	}

	return db, nil
}
