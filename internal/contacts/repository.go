package contacts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
)

// Repository handles client-to-company bookmarks.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a contacts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByClient returns the client's contacts with company name and slug.
func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.Contact, error) {
	const q = `SELECT ct.id, ct.client_id, ct.company_id, co.slug, co.name, COALESCE(ct.note,''), ct.created_at
		FROM contacts ct
		JOIN companies co ON co.id = ct.company_id
		WHERE ct.client_id = $1
		ORDER BY co.name`
	rows, err := r.pool.Query(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Contact{}
	for rows.Next() {
		var ct models.Contact
		if err := rows.Scan(&ct.ID, &ct.ClientID, &ct.CompanyID, &ct.CompanySlug, &ct.CompanyName, &ct.Note, &ct.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, ct)
	}
	return list, rows.Err()
}

// Upsert saves a contact; adding the same company twice updates the note.
func (r *Repository) Upsert(ctx context.Context, ct *models.Contact) error {
	const q = `INSERT INTO contacts (client_id, company_id, note) VALUES ($1, $2, NULLIF($3,''))
		ON CONFLICT (client_id, company_id) DO UPDATE SET note = EXCLUDED.note
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, ct.ClientID, ct.CompanyID, ct.Note).Scan(&ct.ID, &ct.CreatedAt); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

// Delete removes the client's bookmark of a company.
func (r *Repository) Delete(ctx context.Context, clientID, companyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE client_id = $1 AND company_id = $2`, clientID, companyID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("contact not found")
	}
	return nil
}
