package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afelu/guardian/internal/models"
)

type SponsorRepository struct {
	db *sql.DB
}

func NewSponsorRepository(db *sql.DB) *SponsorRepository {
	return &SponsorRepository{db: db}
}

func (r *SponsorRepository) UpsertByEmail(ctx context.Context, email, stripeCustomerID, tier string) (*models.Sponsor, error) {
	const query = `
INSERT INTO sponsors (email, stripe_customer_id, subscription_tier)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
    stripe_customer_id = VALUES(stripe_customer_id),
    subscription_tier = VALUES(subscription_tier),
    updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, email, stripeCustomerID, tier); err != nil {
		return nil, fmt.Errorf("upsert sponsor: %w", err)
	}
	return r.FindByEmail(ctx, email)
}

func (r *SponsorRepository) FindByEmail(ctx context.Context, email string) (*models.Sponsor, error) {
	const query = `
SELECT id, email, COALESCE(stripe_customer_id, ''), subscription_tier, created_at, updated_at
FROM sponsors WHERE email = ?`
	row := r.db.QueryRowContext(ctx, query, email)
	var s models.Sponsor
	if err := row.Scan(&s.ID, &s.Email, &s.StripeCustomerID, &s.SubscriptionTier, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan sponsor: %w", err)
	}
	return &s, nil
}

func (r *SponsorRepository) List(ctx context.Context) ([]models.Sponsor, error) {
	const query = `
SELECT id, email, COALESCE(stripe_customer_id, ''), subscription_tier, created_at, updated_at
FROM sponsors ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sponsors: %w", err)
	}
	defer rows.Close()

	var sponsors []models.Sponsor
	for rows.Next() {
		var s models.Sponsor
		if err := rows.Scan(&s.ID, &s.Email, &s.StripeCustomerID, &s.SubscriptionTier, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sponsor list: %w", err)
		}
		sponsors = append(sponsors, s)
	}
	return sponsors, rows.Err()
}
