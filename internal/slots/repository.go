package slots

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/database"
)

const slotColumns = `id, company_id, mission_id, starts_at, ends_at, COALESCE(note,''), created_at, updated_at`

// Repository handles slot persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a slots repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	var s models.Slot
	if err := row.Scan(&s.ID, &s.CompanyID, &s.MissionID, &s.StartsAt, &s.EndsAt, &s.Note, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("slot not found")
		}
		return nil, err
	}
	return &s, nil
}

// ListRange returns the company's slots overlapping the window.
func (r *Repository) ListRange(ctx context.Context, companyID uuid.UUID, w Window) ([]models.Slot, error) {
	const q = `SELECT ` + slotColumns + ` FROM slots
		WHERE company_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at`
	rows, err := r.pool.Query(ctx, q, companyID, w.From, w.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// Get returns a slot of the company.
func (r *Repository) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Slot, error) {
	return scanSlot(r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 AND company_id = $2`, id, companyID))
}

// Create inserts a slot.
func (r *Repository) Create(ctx context.Context, s *models.Slot) error {
	const q = `INSERT INTO slots (company_id, mission_id, starts_at, ends_at, note)
		VALUES ($1, $2, $3, $4, NULLIF($5,'')) RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, q, s.CompanyID, s.MissionID, s.StartsAt, s.EndsAt, s.Note).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a slot.
func (r *Repository) Update(ctx context.Context, s *models.Slot) error {
	const q = `UPDATE slots SET mission_id = $3, starts_at = $4, ends_at = $5, note = NULLIF($6,''), updated_at = NOW()
		WHERE id = $1 AND company_id = $2 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, s.ID, s.CompanyID, s.MissionID, s.StartsAt, s.EndsAt, s.Note).Scan(&s.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return apperr.NotFound("slot not found")
		}
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

// Delete removes a slot of the company.
func (r *Repository) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("slot not found")
	}
	return nil
}
