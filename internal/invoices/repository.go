package invoices

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

const invoiceColumns = `id, company_id, client_id, mission_id, number, label, minutes, hourly_rate_cents,
	amount_ht_cents, vat_rate, amount_ttc_cents, currency, status, COALESCE(payment_url,''),
	COALESCE(stripe_session_id,''), due_date, paid_at, created_at, updated_at`

// Repository handles invoice persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an invoices repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.ClientID, &inv.MissionID, &inv.Number, &inv.Label,
		&inv.Minutes, &inv.HourlyRateCents, &inv.AmountHTCents, &inv.VATRate, &inv.AmountTTCCents,
		&inv.Currency, &inv.Status, &inv.PaymentURL, &inv.StripeSessionID, &inv.DueDate, &inv.PaidAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("invoice not found")
		}
		return nil, err
	}
	return &inv, nil
}

// Create numbers and inserts an invoice. The company row is locked so concurrent invoices of the
// same company get consecutive numbers.
func (r *Repository) Create(ctx context.Context, inv *models.Invoice) error {
	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT 1 FROM companies WHERE id = $1 FOR UPDATE`, inv.CompanyID); err != nil {
			return fmt.Errorf("lock company: %w", err)
		}
		year := time.Now().UTC().Year()
		var last string
		err := tx.QueryRow(ctx, `SELECT number FROM invoices WHERE company_id = $1 AND number LIKE $2
			ORDER BY length(number) DESC, number DESC LIMIT 1`, inv.CompanyID, NumberPrefix(year)+"%").Scan(&last)
		if err != nil && !database.IsNoRows(err) {
			return fmt.Errorf("last invoice number: %w", err)
		}
		inv.Number = NextNumber(last, year)

		const q = `INSERT INTO invoices (company_id, client_id, mission_id, number, label, minutes, hourly_rate_cents,
				amount_ht_cents, vat_rate, amount_ttc_cents, currency, status, due_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at`
		err = tx.QueryRow(ctx, q, inv.CompanyID, inv.ClientID, inv.MissionID, inv.Number, inv.Label, inv.Minutes,
			inv.HourlyRateCents, inv.AmountHTCents, inv.VATRate, inv.AmountTTCCents, inv.Currency, inv.Status,
			inv.DueDate).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("invoice number already used, retry")
			}
			return fmt.Errorf("insert invoice: %w", err)
		}
		return nil
	})
}

// GetByID returns an invoice.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

func (r *Repository) list(ctx context.Context, where string, arg any) ([]*models.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// ListByCompany returns a company's invoices, newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Invoice, error) {
	return r.list(ctx, "company_id = $1", companyID)
}

// ListByClient returns the invoices addressed to a client, drafts excluded.
func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Invoice, error) {
	return r.list(ctx, "client_id = $1 AND status <> 'draft'", clientID)
}

// Update writes the editable fields and totals.
func (r *Repository) Update(ctx context.Context, inv *models.Invoice) error {
	const q = `UPDATE invoices SET label = $2, minutes = $3, hourly_rate_cents = $4, amount_ht_cents = $5,
			vat_rate = $6, amount_ttc_cents = $7, status = $8, due_date = $9, updated_at = NOW()
		WHERE id = $1 AND status <> 'paid'
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, inv.ID, inv.Label, inv.Minutes, inv.HourlyRateCents, inv.AmountHTCents,
		inv.VATRate, inv.AmountTTCCents, inv.Status, inv.DueDate).Scan(&inv.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return apperr.Conflict("invoice is already paid")
		}
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

// SetPaymentLink stores the checkout URL and session of an invoice.
func (r *Repository) SetPaymentLink(ctx context.Context, id uuid.UUID, url, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET payment_url = $2, stripe_session_id = $3, updated_at = NOW()
		WHERE id = $1`, id, url, sessionID)
	if err != nil {
		return fmt.Errorf("set payment link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invoice not found")
	}
	return nil
}

// MarkPaid sets the invoice paid and forces its mission, if any, to paid. Replays keep the
// first payment time.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.Invoice, error) {
	var inv *models.Invoice
	err := database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		inv, err = scanInvoice(tx.QueryRow(ctx, `UPDATE invoices
			SET status = 'paid', paid_at = COALESCE(paid_at, $2), updated_at = NOW()
			WHERE id = $1
			RETURNING `+invoiceColumns, id, paidAt))
		if err != nil {
			return err
		}
		if inv.MissionID == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE missions SET status = 'paid', updated_at = NOW() WHERE id = $1`, *inv.MissionID); err != nil {
			return fmt.Errorf("mark mission paid: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}
