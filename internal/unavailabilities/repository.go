package unavailabilities

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/internal/slots"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/database"
)

const columns = `id, company_id, starts_at, ends_at, recurrence, weekdays, recurrence_until, exceptions,
	COALESCE(reason,''), created_at, updated_at`

// Repository handles unavailability persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an unavailabilities repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*models.Unavailability, error) {
	var u models.Unavailability
	err := row.Scan(&u.ID, &u.CompanyID, &u.StartsAt, &u.EndsAt, &u.Recurrence, &u.Weekdays, &u.RecurrenceUntil,
		&u.Exceptions, &u.Reason, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("unavailability not found")
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]models.Unavailability, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Unavailability{}
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

// ListByCompany returns all rules of a company.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.Unavailability, error) {
	return r.query(ctx, `SELECT `+columns+` FROM unavailabilities WHERE company_id = $1 ORDER BY starts_at`, companyID)
}

// ListForWindow returns the rules that may produce occurrences in the window.
func (r *Repository) ListForWindow(ctx context.Context, companyID uuid.UUID, w slots.Window) ([]models.Unavailability, error) {
	const q = `SELECT ` + columns + ` FROM unavailabilities
		WHERE company_id = $1
		  AND starts_at < $3
		  AND (
			(recurrence = 'none' AND ends_at > $2)
			OR (recurrence <> 'none' AND (recurrence_until IS NULL OR recurrence_until >= $2 - INTERVAL '1 day'))
		  )
		ORDER BY starts_at`
	return r.query(ctx, q, companyID, w.From, w.To)
}

// Get returns a rule of the company.
func (r *Repository) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Unavailability, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM unavailabilities WHERE id = $1 AND company_id = $2`, id, companyID))
}

// Create inserts a rule.
func (r *Repository) Create(ctx context.Context, u *models.Unavailability) error {
	const q = `INSERT INTO unavailabilities (company_id, starts_at, ends_at, recurrence, weekdays, recurrence_until, exceptions, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''))
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, u.CompanyID, u.StartsAt, u.EndsAt, u.Recurrence, nonNilInts(u.Weekdays),
		u.RecurrenceUntil, nonNilTimes(u.Exceptions), u.Reason).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert unavailability: %w", err)
	}
	return nil
}

// Update overwrites a rule.
func (r *Repository) Update(ctx context.Context, u *models.Unavailability) error {
	const q = `UPDATE unavailabilities SET starts_at = $3, ends_at = $4, recurrence = $5, weekdays = $6,
		recurrence_until = $7, exceptions = $8, reason = NULLIF($9,''), updated_at = NOW()
		WHERE id = $1 AND company_id = $2 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, u.ID, u.CompanyID, u.StartsAt, u.EndsAt, u.Recurrence, nonNilInts(u.Weekdays),
		u.RecurrenceUntil, nonNilTimes(u.Exceptions), u.Reason).Scan(&u.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return apperr.NotFound("unavailability not found")
		}
		return fmt.Errorf("update unavailability: %w", err)
	}
	return nil
}

// AddException appends a date to the rule's exceptions, once.
func (r *Repository) AddException(ctx context.Context, companyID, id uuid.UUID, date time.Time) (*models.Unavailability, error) {
	const q = `UPDATE unavailabilities
		SET exceptions = CASE WHEN $3 = ANY(exceptions) THEN exceptions ELSE array_append(exceptions, $3) END,
			updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING ` + columns
	return scan(r.pool.QueryRow(ctx, q, id, companyID, date))
}

// Delete removes a rule.
func (r *Repository) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM unavailabilities WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete unavailability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("unavailability not found")
	}
	return nil
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func nonNilTimes(v []time.Time) []time.Time {
	if v == nil {
		return []time.Time{}
	}
	return v
}
