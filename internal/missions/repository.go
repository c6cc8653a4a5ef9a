package missions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/database"
)

const missionColumns = `id, company_id, client_id, title, COALESCE(description,''), COALESCE(location,''),
	hourly_rate_cents, status, created_at, updated_at`

// Repository handles mission and mission template persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a missions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (*models.Mission, error) {
	var m models.Mission
	err := row.Scan(&m.ID, &m.CompanyID, &m.ClientID, &m.Title, &m.Description, &m.Location,
		&m.HourlyRateCents, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("mission not found")
		}
		return nil, err
	}
	return &m, nil
}

// NewSlot is a slot to create together with a mission.
type NewSlot struct {
	StartsAt time.Time
	EndsAt   time.Time
	Note     string
}

// Create inserts the mission and its slots in one transaction.
func (r *Repository) Create(ctx context.Context, m *models.Mission, slots []NewSlot) error {
	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO missions (company_id, client_id, title, description, location, hourly_rate_cents, status)
			VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7)
			RETURNING id, created_at, updated_at`
		m.Status = models.MissionProposed
		err := tx.QueryRow(ctx, q, m.CompanyID, m.ClientID, m.Title, m.Description, m.Location, m.HourlyRateCents, m.Status).
			Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert mission: %w", err)
		}
		m.Slots = make([]models.Slot, 0, len(slots))
		for _, ns := range slots {
			s := models.Slot{CompanyID: m.CompanyID, MissionID: &m.ID, StartsAt: ns.StartsAt.UTC(), EndsAt: ns.EndsAt.UTC(), Note: ns.Note}
			err := tx.QueryRow(ctx, `INSERT INTO slots (company_id, mission_id, starts_at, ends_at, note)
				VALUES ($1, $2, $3, $4, NULLIF($5,'')) RETURNING id, created_at, updated_at`,
				s.CompanyID, s.MissionID, s.StartsAt, s.EndsAt, s.Note).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert mission slot: %w", err)
			}
			m.Slots = append(m.Slots, s)
		}
		return nil
	})
}

// GetByID returns a mission with its slots.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	m, err := scanMission(r.pool.QueryRow(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	m.Slots, err = r.ListSlots(ctx, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListSlots returns the slots booked by a mission in chronological order.
func (r *Repository) ListSlots(ctx context.Context, missionID uuid.UUID) ([]models.Slot, error) {
	const q = `SELECT id, company_id, mission_id, starts_at, ends_at, COALESCE(note,''), created_at, updated_at
		FROM slots WHERE mission_id = $1 ORDER BY starts_at`
	rows, err := r.pool.Query(ctx, q, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Slot{}
	for rows.Next() {
		var s models.Slot
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.MissionID, &s.StartsAt, &s.EndsAt, &s.Note, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *Repository) list(ctx context.Context, where string, arg any) ([]*models.Mission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+missionColumns+` FROM missions WHERE `+where+` ORDER BY created_at DESC LIMIT 200`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// ListByClient returns missions proposed by a client, newest first.
func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Mission, error) {
	return r.list(ctx, "client_id = $1", clientID)
}

// ListByCompany returns missions addressed to a company, newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Mission, error) {
	return r.list(ctx, "company_id = $1", companyID)
}

// UpdateStatus moves a mission from one status to another. It fails with a conflict when the
// stored status is no longer from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.MissionStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE missions SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("update mission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("mission status changed, reload and retry")
	}
	return nil
}

// SetStatus overwrites a mission status. Used by invoicing.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.MissionStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE missions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set mission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("mission not found")
	}
	return nil
}

// DeleteProposed deletes a mission still in proposed status, with its slots.
func (r *Repository) DeleteProposed(ctx context.Context, id uuid.UUID) error {
	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status models.MissionStatus
		err := tx.QueryRow(ctx, `SELECT status FROM missions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if database.IsNoRows(err) {
				return apperr.NotFound("mission not found")
			}
			return err
		}
		if status != models.MissionProposed {
			return apperr.Conflict("only proposed missions can be deleted")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM slots WHERE mission_id = $1`, id); err != nil {
			return fmt.Errorf("delete mission slots: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM missions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete mission: %w", err)
		}
		return nil
	})
}

// ListTemplates returns a client's mission templates.
func (r *Repository) ListTemplates(ctx context.Context, clientID uuid.UUID) ([]*models.MissionTemplate, error) {
	const q = `SELECT id, client_id, company_id, name, title, COALESCE(description,''), COALESCE(location,''),
		hourly_rate_cents, created_at, updated_at
		FROM mission_templates WHERE client_id = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.MissionTemplate{}
	for rows.Next() {
		var t models.MissionTemplate
		if err := rows.Scan(&t.ID, &t.ClientID, &t.CompanyID, &t.Name, &t.Title, &t.Description, &t.Location,
			&t.HourlyRateCents, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// CreateTemplate inserts a mission template.
func (r *Repository) CreateTemplate(ctx context.Context, t *models.MissionTemplate) error {
	const q = `INSERT INTO mission_templates (client_id, company_id, name, title, description, location, hourly_rate_cents)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, t.ClientID, t.CompanyID, t.Name, t.Title, t.Description, t.Location, t.HourlyRateCents).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert mission template: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template owned by clientID.
func (r *Repository) DeleteTemplate(ctx context.Context, id, clientID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM mission_templates WHERE id = $1 AND client_id = $2`, id, clientID)
	if err != nil {
		return fmt.Errorf("delete mission template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("template not found")
	}
	return nil
}
