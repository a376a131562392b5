package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"supportbot/internal/domain"
)

// Store persists ticket shadow records keyed by (reporter_id, remote_id).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open is InitDB followed by NewStore.
func Open(path string) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const ticketColumns = `reporter_id, remote_id, category, severity, summary_text, local_created_at, last_known_status, updated_at`

// Upsert inserts rec or, when the key already exists, refreshes its
// status and updated_at. The identity fields and local_created_at of an
// existing record never change.
func (s *Store) Upsert(ctx context.Context, rec domain.TicketRecord) error {
	if rec.ReporterID == "" || rec.RemoteID == "" {
		return fmt.Errorf("upsert ticket: reporter_id and remote_id are required")
	}
	created := rec.LocalCreatedAt.UTC()
	updated := rec.UpdatedAt.UTC()
	if rec.UpdatedAt.IsZero() {
		updated = created
	}
	status := rec.LastKnownStatus
	if status == "" {
		status = domain.StatusUnknown
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(reporter_id, remote_id) DO UPDATE SET
		   last_known_status = excluded.last_known_status,
		   updated_at = excluded.updated_at`,
		rec.ReporterID, rec.RemoteID, string(rec.Category), string(rec.Severity),
		rec.SummaryText, created, string(status), updated,
	)
	if err != nil {
		return fmt.Errorf("upsert ticket %s: %w", rec.RemoteID, err)
	}
	return nil
}

func (s *Store) GetLatest(ctx context.Context, reporterID string) (domain.TicketRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE reporter_id = ?
		 ORDER BY local_created_at DESC, rowid DESC
		 LIMIT 1`,
		reporterID,
	)
	rec, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TicketRecord{}, domain.ErrNoTicketsFound
	}
	return rec, err
}

func (s *Store) GetByID(ctx context.Context, reporterID, remoteID string) (domain.TicketRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE reporter_id = ? AND remote_id = ?`,
		reporterID, remoteID,
	)
	rec, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TicketRecord{}, domain.ErrTicketNotFound
	}
	return rec, err
}

// List returns every record for reporterID, newest first.
func (s *Store) List(ctx context.Context, reporterID string) ([]domain.TicketRecord, error) {
	return s.query(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE reporter_id = ?
		 ORDER BY local_created_at DESC, rowid DESC`,
		reporterID,
	)
}

// ListRecentByCategory returns the reporter's records of category created
// at or after since, newest first.
func (s *Store) ListRecentByCategory(ctx context.Context, reporterID string, category domain.Category, since time.Time) ([]domain.TicketRecord, error) {
	return s.query(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE reporter_id = ? AND category = ? AND local_created_at >= ?
		 ORDER BY local_created_at DESC, rowid DESC`,
		reporterID, string(category), since.UTC(),
	)
}

// ListOpen returns up to limit records whose last known status is open,
// least recently updated first.
func (s *Store) ListOpen(ctx context.Context, limit int) ([]domain.TicketRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.query(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE last_known_status IN (?, ?)
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		string(domain.StatusOpen), string(domain.StatusInProgress), limit,
	)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.TicketRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TicketRecord
	for rows.Next() {
		rec, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(r rowScanner) (domain.TicketRecord, error) {
	var (
		rec      domain.TicketRecord
		category string
		severity string
		status   string
		updated  sql.NullTime
	)
	if err := r.Scan(
		&rec.ReporterID, &rec.RemoteID, &category, &severity,
		&rec.SummaryText, &rec.LocalCreatedAt, &status, &updated,
	); err != nil {
		return domain.TicketRecord{}, err
	}
	rec.Category = domain.Category(category)
	rec.Severity = domain.Severity(severity)
	rec.LastKnownStatus = domain.TicketStatus(status)
	rec.LocalCreatedAt = rec.LocalCreatedAt.UTC()
	if updated.Valid {
		rec.UpdatedAt = updated.Time.UTC()
	} else {
		rec.UpdatedAt = rec.LocalCreatedAt
	}
	return rec, nil
}
