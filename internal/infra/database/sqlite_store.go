package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/notification"
	"compliance_notifier/internal/domain/subject"
)

// SQLiteStore implements the subject and notification repositories on SQLite
// for single-node deployments.
type SQLiteStore struct {
	db   *sql.DB
	lock sync.Mutex // cycle lock; SQLite deployments are single-process
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func scanSQLiteSubject(scan func(dest ...any) error) (*subject.Profile, error) {
	var r subjectRow
	var incorporated sql.NullString
	if err := scan(&r.ID, &r.Email, &r.CompanyType, &r.CompanyName, &r.ShopName, &r.ContactName,
		&r.FiscalMonth, &r.EmployeeCount, &incorporated, &r.Plan, &r.Status); err != nil {
		return nil, err
	}
	if incorporated.Valid && incorporated.String != "" {
		d, err := calendar.ParseDate(incorporated.String)
		if err != nil {
			return nil, fmt.Errorf("invalid incorporation_date: %w", err)
		}
		return r.profile(&d), nil
	}
	return r.profile(nil), nil
}

func (s *SQLiteStore) ListActive(ctx context.Context, states []subject.SubscriptionState) ([]*subject.Profile, error) {
	profiles := make([]*subject.Profile, 0)
	if len(states) == 0 {
		return profiles, nil
	}
	args := make([]any, 0, len(states))
	for _, st := range stateStrings(states) {
		args = append(args, st)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := `SELECT ` + subjectColumns + ` FROM subjects
		WHERE subscription_status IN (` + placeholders + `) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing active subjects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanSQLiteSubject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("error scanning subject: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subjects: %w", err)
	}
	return profiles, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*subject.Profile, error) {
	p, err := scanSQLiteSubject(s.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = ?`, id).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting subject by ID: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetDisabledRules(ctx context.Context, subjectID string) (map[string]bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT disabled_rule_ids FROM subjects WHERE id = ?`, subjectID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting disabled rules: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("error decoding disabled rules: %w", err)
	}
	return ruleSet(ids), nil
}

func (s *SQLiteStore) GetCustomNotes(ctx context.Context, subjectID string) (subject.NoteOverrides, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT custom_notes FROM subjects WHERE id = ?`, subjectID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting custom notes: %w", err)
	}
	return decodeCustomNotes([]byte(raw))
}

// Upsert creates or replaces a subject, including its preferences.
func (s *SQLiteStore) Upsert(ctx context.Context, p *subject.Profile) error {
	notes, err := encodeCustomNotes(p.CustomNotes)
	if err != nil {
		return err
	}
	disabled, err := json.Marshal(ruleList(p.DisabledRuleIDs))
	if err != nil {
		return err
	}
	var incorporated sql.NullString
	if p.IncorporationDate != nil {
		incorporated = sql.NullString{String: p.IncorporationDate.String(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO subjects (`+subjectColumns+`, disabled_rule_ids, custom_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, string(p.Type), p.CompanyName, p.ShopName, p.ContactName,
		int(p.FiscalMonth()), p.EmployeeHeadcount, incorporated, string(p.Plan), string(p.State),
		string(disabled), string(notes))
	if err != nil {
		return fmt.Errorf("error upserting subject: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, key notification.Key) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications
		WHERE subject_id = ? AND rule_id = ? AND occurrence_epoch_day = ? AND lead_days = ?`,
		key.SubjectID, key.RuleID, key.OccurrenceEpochDay, key.LeadDays).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking notification %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec *notification.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO notifications (subject_id, rule_id, occurrence_epoch_day, lead_days,
		user_email, regulation_name, deadline_date, cycle_id, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Key.SubjectID, rec.Key.RuleID, rec.Key.OccurrenceEpochDay, rec.Key.LeadDays,
		rec.Email, rec.RegulationName, rec.DeadlineDate.String(), rec.CycleID, rec.SentAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("error creating notification %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return n == 1, nil
}

// CountNotifications returns how many reminders have been recorded for a subject.
func (s *SQLiteStore) CountNotifications(ctx context.Context, subjectID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE subject_id = ?`, subjectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting notifications: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) TryLock(_ context.Context) (func(), bool, error) {
	if !s.lock.TryLock() {
		return nil, false, nil
	}
	return s.lock.Unlock, true, nil
}
