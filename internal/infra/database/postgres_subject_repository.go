package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq" // For pq.Array

	"compliance_notifier/internal/domain/subject"
)

type PostgresSubjectRepository struct {
	db *sql.DB
}

func NewPostgresSubjectRepository(db *sql.DB) *PostgresSubjectRepository {
	return &PostgresSubjectRepository{db: db}
}

const subjectColumns = `id, email, company_type, company_name, shop_name, contact_name,
	fiscal_month, employee_count, incorporation_date, subscription_plan, subscription_status`

func scanPostgresSubject(scan func(dest ...any) error) (*subject.Profile, error) {
	var r subjectRow
	var incorporated sql.NullTime
	if err := scan(&r.ID, &r.Email, &r.CompanyType, &r.CompanyName, &r.ShopName, &r.ContactName,
		&r.FiscalMonth, &r.EmployeeCount, &incorporated, &r.Plan, &r.Status); err != nil {
		return nil, err
	}
	if incorporated.Valid {
		return r.profile(dateOf(incorporated.Time)), nil
	}
	return r.profile(nil), nil
}

func (r *PostgresSubjectRepository) ListActive(ctx context.Context, states []subject.SubscriptionState) ([]*subject.Profile, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects
               WHERE subscription_status = ANY($1::text[]) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(stateStrings(states)))
	if err != nil {
		return nil, fmt.Errorf("error listing active subjects: %w", err)
	}
	defer rows.Close()

	profiles := make([]*subject.Profile, 0)
	for rows.Next() {
		p, err := scanPostgresSubject(rows.Scan)
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

func (r *PostgresSubjectRepository) GetByID(ctx context.Context, id string) (*subject.Profile, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE id = $1`
	p, err := scanPostgresSubject(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting subject by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresSubjectRepository) GetDisabledRules(ctx context.Context, subjectID string) (map[string]bool, error) {
	var ids []string
	err := r.db.QueryRowContext(ctx, `SELECT disabled_rule_ids FROM subjects WHERE id = $1`, subjectID).Scan(pq.Array(&ids))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting disabled rules: %w", err)
	}
	return ruleSet(ids), nil
}

func (r *PostgresSubjectRepository) GetCustomNotes(ctx context.Context, subjectID string) (subject.NoteOverrides, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT custom_notes FROM subjects WHERE id = $1`, subjectID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting custom notes: %w", err)
	}
	return decodeCustomNotes(raw)
}

// Upsert creates or replaces a subject, including its preferences.
func (r *PostgresSubjectRepository) Upsert(ctx context.Context, p *subject.Profile) error {
	notes, err := encodeCustomNotes(p.CustomNotes)
	if err != nil {
		return err
	}
	var incorporated sql.NullString
	if p.IncorporationDate != nil {
		incorporated = sql.NullString{String: p.IncorporationDate.String(), Valid: true}
	}
	query := `INSERT INTO subjects (` + subjectColumns + `, disabled_rule_ids, custom_notes)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date, $10, $11, $12, $13)
               ON CONFLICT (id) DO UPDATE SET
                 email = EXCLUDED.email, company_type = EXCLUDED.company_type,
                 company_name = EXCLUDED.company_name, shop_name = EXCLUDED.shop_name,
                 contact_name = EXCLUDED.contact_name, fiscal_month = EXCLUDED.fiscal_month,
                 employee_count = EXCLUDED.employee_count, incorporation_date = EXCLUDED.incorporation_date,
                 subscription_plan = EXCLUDED.subscription_plan, subscription_status = EXCLUDED.subscription_status,
                 disabled_rule_ids = EXCLUDED.disabled_rule_ids, custom_notes = EXCLUDED.custom_notes`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.Email, string(p.Type), p.CompanyName, p.ShopName, p.ContactName,
		int(p.FiscalMonth()), p.EmployeeHeadcount, incorporated, string(p.Plan), string(p.State),
		pq.Array(ruleList(p.DisabledRuleIDs)), notes)
	if err != nil {
		return fmt.Errorf("error upserting subject: %w", err)
	}
	return nil
}
