package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Overview is the aggregate snapshot served by the admin dashboard.
type Overview struct {
	TotalUsers       int64
	TotalSponsors    int64
	CodesIssued      int64
	CodesRedeemed    int64
	CertificatesOut  int64
	PaymentsRecorded int64
}

type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM users`, &o.TotalUsers},
		{`SELECT COUNT(*) FROM sponsors`, &o.TotalSponsors},
		{`SELECT COUNT(*) FROM access_codes`, &o.CodesIssued},
		{`SELECT COUNT(*) FROM access_codes WHERE status = 'USED'`, &o.CodesRedeemed},
		{`SELECT COUNT(*) FROM certificates`, &o.CertificatesOut},
		{`SELECT COUNT(*) FROM payments`, &o.PaymentsRecorded},
	}
	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats overview: %w", err)
		}
	}
	return &o, nil
}
