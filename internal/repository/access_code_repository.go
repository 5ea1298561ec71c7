package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afelu/guardian/internal/models"
)

// ErrCodeAlreadyUsed reports that another redemption won the race for a code.
var ErrCodeAlreadyUsed = errors.New("access code already used")

type AccessCodeRepository struct {
	db *sql.DB
}

func NewAccessCodeRepository(db *sql.DB) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

func (r *AccessCodeRepository) FindByCode(ctx context.Context, code string) (*models.AccessCode, error) {
	const query = `
SELECT id, code, status, sponsor_id, redeemed_by, used_at, created_at
FROM access_codes WHERE code = ?`
	row := r.db.QueryRowContext(ctx, query, code)
	var ac models.AccessCode
	var redeemedBy sql.NullInt64
	var usedAt sql.NullTime
	if err := row.Scan(&ac.ID, &ac.Code, &ac.Status, &ac.SponsorID, &redeemedBy, &usedAt, &ac.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan access code: %w", err)
	}
	if redeemedBy.Valid {
		ac.RedeemedBy = &redeemedBy.Int64
	}
	if usedAt.Valid {
		t := usedAt.Time
		ac.UsedAt = &t
	}
	return &ac, nil
}

// Redeem marks the code USED and grants quota to the user in one transaction.
// The status flip is conditional on the code still being NEW, so two
// concurrent redemptions of the same code cannot both grant quota.
func (r *AccessCodeRepository) Redeem(ctx context.Context, codeID, telegramID int64, gptGrant, fetchGrant int) (*models.User, bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE access_codes SET status = 'USED', used_at = NOW()
WHERE id = ? AND status = 'NEW'`, codeID)
	if err != nil {
		return nil, false, fmt.Errorf("mark code used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("code rows affected: %w", err)
	}
	if affected == 0 {
		return nil, false, ErrCodeAlreadyUsed
	}

	upsert, err := tx.ExecContext(ctx, `
INSERT INTO users (telegram_id, quota_gpt, quota_fetch, access_code_id)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    quota_gpt = quota_gpt + VALUES(quota_gpt),
    quota_fetch = quota_fetch + VALUES(quota_fetch),
    access_code_id = VALUES(access_code_id),
    updated_at = NOW()`, telegramID, gptGrant, fetchGrant, codeID)
	if err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	// MySQL reports 1 affected row for an insert, 2 for an update.
	upserted, err := upsert.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("upsert rows affected: %w", err)
	}
	created := upserted == 1

	var user models.User
	var codeRef sql.NullInt64
	var lastActive sql.NullTime
	row := tx.QueryRowContext(ctx, `
SELECT id, telegram_id, quota_gpt, quota_fetch, access_code_id, last_active, created_at, updated_at
FROM users WHERE telegram_id = ?`, telegramID)
	if err := row.Scan(&user.ID, &user.TelegramID, &user.QuotaGPT, &user.QuotaFetch, &codeRef, &lastActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("reload user: %w", err)
	}
	if codeRef.Valid {
		user.AccessCodeID = &codeRef.Int64
	}
	if lastActive.Valid {
		t := lastActive.Time
		user.LastActive = &t
	}

	if _, err := tx.ExecContext(ctx, `UPDATE access_codes SET redeemed_by = ? WHERE id = ?`, user.ID, codeID); err != nil {
		return nil, false, fmt.Errorf("link redeemer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit redeem tx: %w", err)
	}
	return &user, created, nil
}

func (r *AccessCodeRepository) Create(ctx context.Context, code string, sponsorID int64) error {
	const query = `INSERT INTO access_codes (code, status, sponsor_id) VALUES (?, 'NEW', ?)`
	if _, err := r.db.ExecContext(ctx, query, code, sponsorID); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create access code: %w", err)
	}
	return nil
}

func (r *AccessCodeRepository) ListBySponsor(ctx context.Context, sponsorID int64) ([]models.AccessCode, error) {
	const query = `
SELECT id, code, status, sponsor_id, redeemed_by, used_at, created_at
FROM access_codes WHERE sponsor_id = ? ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("list sponsor codes: %w", err)
	}
	defer rows.Close()

	var codes []models.AccessCode
	for rows.Next() {
		var ac models.AccessCode
		var redeemedBy sql.NullInt64
		var usedAt sql.NullTime
		if err := rows.Scan(&ac.ID, &ac.Code, &ac.Status, &ac.SponsorID, &redeemedBy, &usedAt, &ac.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sponsor code: %w", err)
		}
		if redeemedBy.Valid {
			ac.RedeemedBy = &redeemedBy.Int64
		}
		if usedAt.Valid {
			t := usedAt.Time
			ac.UsedAt = &t
		}
		codes = append(codes, ac)
	}
	return codes, rows.Err()
}
