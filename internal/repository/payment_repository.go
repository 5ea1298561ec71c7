package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afelu/guardian/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create returns ErrDuplicate when the Stripe session was already recorded,
// which makes webhook retries idempotent.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	const query = `
INSERT INTO payments (stripe_session_id, sponsor_email, price_id, tier, codes_generated, batch_id, amount, currency, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query,
		p.StripeSessionID, p.SponsorEmail, p.PriceID, p.Tier, p.CodesGenerated, p.BatchID, p.Amount, p.Currency, p.Status); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	const query = `
SELECT id, stripe_session_id, sponsor_email, COALESCE(price_id, ''), tier, codes_generated, COALESCE(batch_id, ''), amount, currency, status, created_at
FROM payments WHERE stripe_session_id = ?`
	row := r.db.QueryRowContext(ctx, query, sessionID)
	var p models.Payment
	if err := row.Scan(&p.ID, &p.StripeSessionID, &p.SponsorEmail, &p.PriceID, &p.Tier, &p.CodesGenerated, &p.BatchID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) List(ctx context.Context, limit int) ([]models.Payment, error) {
	const query = `
SELECT id, stripe_session_id, sponsor_email, COALESCE(price_id, ''), tier, codes_generated, COALESCE(batch_id, ''), amount, currency, status, created_at
FROM payments ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.StripeSessionID, &p.SponsorEmail, &p.PriceID, &p.Tier, &p.CodesGenerated, &p.BatchID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment list: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
