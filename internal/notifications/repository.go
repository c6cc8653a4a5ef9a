package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/extrabeam/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create records a delivery attempt.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (company_id, email_type, recipient_email, subject, status, provider_id, sent_at, error_message)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, NULLIF($6,''), $7, NULLIF($8,''))
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, el.CompanyID, el.EmailType, el.RecipientEmail, el.Subject, el.Status,
		el.ProviderID, el.SentAt, el.ErrorMessage).Scan(&el.ID, &el.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// ListByCompany returns the company's email logs, newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID, limit int) ([]*models.EmailLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT id, company_id, email_type, recipient_email, subject, status, provider_id, sent_at, error_message, created_at
		FROM email_logs
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, providerID, errMsg *string
		if err := rows.Scan(&el.ID, &el.CompanyID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status,
			&providerID, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if providerID != nil {
			el.ProviderID = *providerID
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
