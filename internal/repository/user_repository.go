package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afelu/guardian/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const query = `
SELECT id, telegram_id, quota_gpt, quota_fetch, access_code_id, last_active, created_at, updated_at
FROM users WHERE telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var u models.User
	var codeID sql.NullInt64
	var lastActive sql.NullTime
	if err := row.Scan(&u.ID, &u.TelegramID, &u.QuotaGPT, &u.QuotaFetch, &codeID, &lastActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if codeID.Valid {
		u.AccessCodeID = &codeID.Int64
	}
	if lastActive.Valid {
		t := lastActive.Time
		u.LastActive = &t
	}
	return &u, nil
}

// ConsumeQuota decrements both quota pools in one conditional update. It
// reports false without touching the row when the user cannot afford the cost,
// so concurrent actions cannot race past the balance check.
func (r *UserRepository) ConsumeQuota(ctx context.Context, userID int64, gpt, fetch int) (bool, error) {
	const query = `
UPDATE users SET quota_gpt = quota_gpt - ?, quota_fetch = quota_fetch - ?, updated_at = NOW()
WHERE id = ? AND quota_gpt >= ? AND quota_fetch >= ?`
	res, err := r.db.ExecContext(ctx, query, gpt, fetch, userID, gpt, fetch)
	if err != nil {
		return false, fmt.Errorf("consume quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("quota rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *UserRepository) TouchLastActive(ctx context.Context, userID int64) error {
	const query = `UPDATE users SET last_active = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}

func (r *UserRepository) RecentUsers(ctx context.Context, limit int) ([]models.User, error) {
	const query = `
SELECT id, telegram_id, quota_gpt, quota_fetch, access_code_id, last_active, created_at, updated_at
FROM users ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var codeID sql.NullInt64
		var lastActive sql.NullTime
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.QuotaGPT, &u.QuotaFetch, &codeID, &lastActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recent user: %w", err)
		}
		if codeID.Valid {
			u.AccessCodeID = &codeID.Int64
		}
		if lastActive.Valid {
			t := lastActive.Time
			u.LastActive = &t
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
