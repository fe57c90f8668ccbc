package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"market-pulse-alerts/internal/alert"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createAlertsTableSQL = `CREATE TABLE IF NOT EXISTS alerts (
        id          BIGSERIAL PRIMARY KEY,
        alert_id    TEXT NOT NULL,
        ts          TIMESTAMPTZ NOT NULL,
        kind        TEXT NOT NULL,
        source      TEXT NOT NULL,
        subject     TEXT NOT NULL DEFAULT '',
        title       TEXT NOT NULL,
        body_digest TEXT NOT NULL DEFAULT '',
        status      TEXT NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS alerts_ts_idx ON alerts (ts);
    CREATE INDEX IF NOT EXISTS alerts_subject_idx ON alerts (subject);`

	insertAlertSQL = `INSERT INTO alerts (
        alert_id, ts, kind, source, subject, title, body_digest, status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	updateAlertStatusSQL = `UPDATE alerts SET status = $2 WHERE alert_id = $1;`

	listRecentAlertsSQL = `SELECT
        id, alert_id, ts, kind, source, subject, title, body_digest, status, created_at
    FROM alerts
    ORDER BY ts DESC
    LIMIT $1;`

	countAlertsSQL = `SELECT COUNT(*) FROM alerts;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertLog defines operations for the append-only alert audit trail.
type AlertLog interface {
	Append(ctx context.Context, a alert.Alert, status alert.Status) (AlertRecord, error)
	UpdateStatus(ctx context.Context, alertID string, status alert.Status) error
	ListRecent(ctx context.Context, limit int) ([]AlertRecord, error)
	ListBetween(ctx context.Context, from, to time.Time, filter QueryFilter) ([]AlertRecord, error)
	CountAlerts(ctx context.Context) (int64, error)
	DeleteBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers for single-writer guarding.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates audit-log access on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the alerts table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createAlertsTableSQL); execErr != nil {
		return fmt.Errorf("ensure alerts schema: %w", execErr)
	}
	return nil
}

// Append writes one audit row synchronously and returns the persisted record.
func (s *Store) Append(ctx context.Context, a alert.Alert, status alert.Status) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	rec := NewRecord(a, status)
	row := pool.QueryRow(ctx, insertAlertSQL,
		rec.AlertID,
		rec.Timestamp,
		string(rec.Kind),
		rec.Source,
		rec.Subject,
		rec.Title,
		rec.BodyDigest,
		string(rec.Status),
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("append alert: %w", scanErr)
	}
	return rec, nil
}

// UpdateStatus corrects the delivery status of a previously appended alert,
// used after a sink failure downgrades sent to failed.
func (s *Store) UpdateStatus(ctx context.Context, alertID string, status alert.Status) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateAlertStatusSQL, alertID, string(status))
	if execErr != nil {
		return fmt.Errorf("update alert status: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecent lists the most recent alerts ordered by descending timestamp.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows, limit)
}

// ListBetween lists alerts within a time window, optionally filtered by
// subject, kind, and status.
func (s *Store) ListBetween(ctx context.Context, from, to time.Time, filter QueryFilter) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, alert_id, ts, kind, source, subject, title, body_digest, status, created_at
    FROM alerts WHERE ts >= $1 AND ts < $2`)

	args := []any{from, to}
	if filter.Subject != "" {
		args = append(args, strings.ToUpper(filter.Subject))
		fmt.Fprintf(&sb, " AND subject = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		fmt.Fprintf(&sb, " AND kind = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	sb.WriteString(" ORDER BY ts;")

	rows, queryErr := pool.Query(ctx, sb.String(), args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows, 0)
}

// CountAlerts counts stored audit rows.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

// DeleteBefore prunes audit rows older than the retention horizon.
func (s *Store) DeleteBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. Guards against a second pipeline writer on the same database.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func collectRecords(rows pgx.Rows, sizeHint int) ([]AlertRecord, error) {
	records := make([]AlertRecord, 0, sizeHint)
	for rows.Next() {
		var (
			rec    AlertRecord
			kind   string
			status string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.Timestamp,
			&kind,
			&rec.Source,
			&rec.Subject,
			&rec.Title,
			&rec.BodyDigest,
			&status,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Kind = alert.Kind(kind)
		rec.Status = alert.Status(status)
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

var _ AlertLog = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
