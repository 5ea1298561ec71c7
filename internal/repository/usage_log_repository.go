package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type UsageLogRepository struct {
	db *sql.DB
}

func NewUsageLogRepository(db *sql.DB) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

func (r *UsageLogRepository) Log(ctx context.Context, userID int64, action, details string) error {
	const query = `INSERT INTO usage_logs (user_id, action, details) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, action, details); err != nil {
		return fmt.Errorf("log usage: %w", err)
	}
	return nil
}

// StatsSince returns action counts aggregated since the cutoff.
func (r *UsageLogRepository) StatsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	const query = `
SELECT action, COUNT(*) FROM usage_logs WHERE created_at >= ? GROUP BY action`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan usage stat: %w", err)
		}
		stats[action] = count
	}
	return stats, rows.Err()
}
