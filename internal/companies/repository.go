package companies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/database"
)

const companyColumns = `id, owner_id, slug, name, COALESCE(headline,''), COALESCE(bio,''), skills, hourly_rate_cents,
	COALESCE(city,''), COALESCE(phone,''), COALESCE(siret,''), COALESCE(avatar_key,''), COALESCE(cv_key,''),
	subscription_status, COALESCE(subscription_plan,''), subscription_period_end,
	COALESCE(stripe_customer_id,''), COALESCE(stripe_subscription_id,''), created_at, updated_at`

// Repository handles company persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a companies repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (*models.Company, error) {
	var co models.Company
	err := row.Scan(&co.ID, &co.OwnerID, &co.Slug, &co.Name, &co.Headline, &co.Bio, &co.Skills, &co.HourlyRateCents,
		&co.City, &co.Phone, &co.Siret, &co.AvatarKey, &co.CVKey,
		&co.SubscriptionStatus, &co.SubscriptionPlan, &co.SubscriptionPeriodEnd,
		&co.StripeCustomerID, &co.StripeSubscriptionID, &co.CreatedAt, &co.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("company not found")
		}
		return nil, err
	}
	if co.Skills == nil {
		co.Skills = []string{}
	}
	return &co, nil
}

// Create inserts a company. Duplicate slug or a second company for the same owner is a conflict.
func (r *Repository) Create(ctx context.Context, co *models.Company) error {
	const q = `INSERT INTO companies (owner_id, slug, name, headline, bio, skills, hourly_rate_cents, city, phone, siret)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7, NULLIF($8,''), NULLIF($9,''), NULLIF($10,''))
		RETURNING id, subscription_status, created_at, updated_at`
	if co.Skills == nil {
		co.Skills = []string{}
	}
	err := r.pool.QueryRow(ctx, q, co.OwnerID, co.Slug, co.Name, co.Headline, co.Bio, co.Skills, co.HourlyRateCents, co.City, co.Phone, co.Siret).
		Scan(&co.ID, &co.SubscriptionStatus, &co.CreatedAt, &co.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("a company with this slug already exists, or you already own one")
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// GetByID returns a company by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
}

// GetBySlug returns a company by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Company, error) {
	return scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE slug = $1`, strings.ToLower(slug)))
}

// GetByOwner returns the company owned by a user.
func (r *Repository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Company, error) {
	return scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE owner_id = $1`, ownerID))
}

// GetByStripeCustomerID returns the company linked to a vendor customer.
func (r *Repository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Company, error) {
	return scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE stripe_customer_id = $1`, customerID))
}

// DirectoryFilter narrows the public directory.
type DirectoryFilter struct {
	City  string
	Skill string
	Limit int
}

// ListActive returns companies whose subscription currently grants access, for the public directory.
func (r *Repository) ListActive(ctx context.Context, f DirectoryFilter) ([]*models.Company, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	const q = `SELECT ` + companyColumns + ` FROM companies
		WHERE subscription_status IN ('active', 'trialing')
		  AND (subscription_period_end IS NULL OR subscription_period_end > NOW())
		  AND ($1 = '' OR lower(city) = lower($1))
		  AND ($2 = '' OR lower($2) = ANY(SELECT lower(s) FROM unnest(skills) s))
		ORDER BY name
		LIMIT $3`
	rows, err := r.pool.Query(ctx, q, f.City, f.Skill, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Company
	for rows.Next() {
		co, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, co)
	}
	return list, rows.Err()
}

// ProfileUpdate holds the editable CV fields; nil fields are left unchanged.
type ProfileUpdate struct {
	Name            *string
	Headline        *string
	Bio             *string
	Skills          []string
	HourlyRateCents *int64
	City            *string
	Phone           *string
	Siret           *string
	AvatarKey       *string
	CVKey           *string
}

// UpdateProfile applies a partial profile update.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, u ProfileUpdate) (*models.Company, error) {
	const q = `UPDATE companies SET
		name = COALESCE($2, name),
		headline = COALESCE($3, headline),
		bio = COALESCE($4, bio),
		skills = COALESCE($5, skills),
		hourly_rate_cents = COALESCE($6, hourly_rate_cents),
		city = COALESCE($7, city),
		phone = COALESCE($8, phone),
		siret = COALESCE($9, siret),
		avatar_key = COALESCE($10, avatar_key),
		cv_key = COALESCE($11, cv_key),
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + companyColumns
	return scanCompany(r.pool.QueryRow(ctx, q, id, u.Name, u.Headline, u.Bio, u.Skills, u.HourlyRateCents,
		u.City, u.Phone, u.Siret, u.AvatarKey, u.CVKey))
}

// SetStripeCustomerID stores the vendor customer id unless one is already set, and returns the id that
// is stored afterwards. Two racing checkouts therefore agree on a single customer.
func (r *Repository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) (string, error) {
	const q = `UPDATE companies SET stripe_customer_id = COALESCE(stripe_customer_id, $2), updated_at = NOW()
		WHERE id = $1 RETURNING stripe_customer_id`
	var stored string
	if err := r.pool.QueryRow(ctx, q, id, customerID).Scan(&stored); err != nil {
		if database.IsNoRows(err) {
			return "", apperr.NotFound("company not found")
		}
		return "", fmt.Errorf("set stripe customer: %w", err)
	}
	return stored, nil
}

// UpdateSubscription overwrites the mirrored subscription columns. Empty ids keep the stored value.
func (r *Repository) UpdateSubscription(ctx context.Context, id uuid.UUID, s models.SubscriptionState) error {
	const q = `UPDATE companies SET
		subscription_status = $2,
		subscription_plan = NULLIF($3, ''),
		subscription_period_end = $4,
		stripe_customer_id = COALESCE(NULLIF($5, ''), stripe_customer_id),
		stripe_subscription_id = COALESCE(NULLIF($6, ''), stripe_subscription_id),
		updated_at = NOW()
		WHERE id = $1`
	var periodEnd *time.Time
	if s.PeriodEnd != nil {
		t := s.PeriodEnd.UTC()
		periodEnd = &t
	}
	tag, err := r.pool.Exec(ctx, q, id, s.Status, s.Plan, periodEnd, s.CustomerID, s.SubscriptionID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("company not found")
	}
	return nil
}
