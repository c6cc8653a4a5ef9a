package clients

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/database"
)

// Repository handles client profile persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a clients repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByUser returns the client profile of a user.
func (r *Repository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.ClientProfile, error) {
	const q = `SELECT id, user_id, company_name, COALESCE(siret,''), COALESCE(address,''), COALESCE(city,''),
		COALESCE(phone,''), created_at, updated_at FROM client_profiles WHERE user_id = $1`
	var p models.ClientProfile
	err := r.pool.QueryRow(ctx, q, userID).Scan(&p.ID, &p.UserID, &p.CompanyName, &p.Siret, &p.Address,
		&p.City, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("client profile not found")
		}
		return nil, err
	}
	return &p, nil
}

// Upsert creates or replaces the profile of p.UserID.
func (r *Repository) Upsert(ctx context.Context, p *models.ClientProfile) error {
	const q = `INSERT INTO client_profiles (user_id, company_name, siret, address, city, phone)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''))
		ON CONFLICT (user_id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			siret = EXCLUDED.siret,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			phone = EXCLUDED.phone,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, p.UserID, p.CompanyName, p.Siret, p.Address, p.City, p.Phone).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert client profile: %w", err)
	}
	return nil
}
