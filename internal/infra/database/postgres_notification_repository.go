// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"compliance_notifier/internal/domain/notification"
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Exists(ctx context.Context, key notification.Key) (bool, error) {
	query := `SELECT EXISTS (
               SELECT 1 FROM notifications
               WHERE subject_id = $1 AND rule_id = $2 AND occurrence_epoch_day = $3 AND lead_days = $4)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, key.SubjectID, key.RuleID, key.OccurrenceEpochDay, key.LeadDays).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking notification %s: %w", key, err)
	}
	return exists, nil
}

// Create is an atomic create-if-absent keyed on the notification key.
func (r *PostgresNotificationRepository) Create(ctx context.Context, rec *notification.Record) (bool, error) {
	query := `INSERT INTO notifications (subject_id, rule_id, occurrence_epoch_day, lead_days,
                 user_email, regulation_name, deadline_date, cycle_id, sent_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
               ON CONFLICT (subject_id, rule_id, occurrence_epoch_day, lead_days) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		rec.Key.SubjectID, rec.Key.RuleID, rec.Key.OccurrenceEpochDay, rec.Key.LeadDays,
		rec.Email, rec.RegulationName, rec.DeadlineDate.String(), rec.CycleID, rec.SentAt)
	if err != nil {
		return false, fmt.Errorf("error creating notification %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresNotificationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// cycleLockID is the advisory lock key shared by every evaluation cycle.
const cycleLockID int64 = 0x6d65726b69 // "merki"

// PostgresCycleLock serializes evaluation cycles across processes with a
// session-level advisory lock held on a dedicated connection.
type PostgresCycleLock struct {
	db *sql.DB
}

func NewPostgresCycleLock(db *sql.DB) *PostgresCycleLock {
	return &PostgresCycleLock{db: db}
}

func (l *PostgresCycleLock) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("error reserving connection for cycle lock: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, cycleLockID).Scan(&ok); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("error acquiring cycle lock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, false, nil
	}
	release := func() {
		// Closing the session would drop the lock as well; unlock explicitly so the
		// connection can return to the pool clean.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, cycleLockID)
		conn.Close()
	}
	return release, true, nil
}
