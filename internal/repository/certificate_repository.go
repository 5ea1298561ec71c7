package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afelu/guardian/internal/models"
)

type CertificateRepository struct {
	db *sql.DB
}

func NewCertificateRepository(db *sql.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) scanOne(row *sql.Row) (*models.Certificate, error) {
	var c models.Certificate
	var docURL sql.NullString
	if err := row.Scan(&c.ID, &c.CertificateID, &c.UserID, &c.CourseID, &c.Score, &docURL, &c.IssuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	c.DocumentURL = docURL.String
	return &c, nil
}

func (r *CertificateRepository) FindByUserCourse(ctx context.Context, userID int64, courseID string) (*models.Certificate, error) {
	const query = `
SELECT id, certificate_id, user_id, course_id, score, document_url, issued_at
FROM certificates WHERE user_id = ? AND course_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, courseID))
}

func (r *CertificateRepository) FindByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error) {
	const query = `
SELECT id, certificate_id, user_id, course_id, score, document_url, issued_at
FROM certificates WHERE certificate_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, certificateID))
}

func (r *CertificateRepository) ExistsCertificateID(ctx context.Context, certificateID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM certificates WHERE certificate_id = ?`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, certificateID).Scan(&n); err != nil {
		return false, fmt.Errorf("check certificate id: %w", err)
	}
	return n > 0, nil
}

// Create returns ErrDuplicate when either the certificate id or the
// user+course pair already exists, so callers can retry or reuse.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	const query = `
INSERT INTO certificates (certificate_id, user_id, course_id, score, document_url)
VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, cert.CertificateID, cert.UserID, cert.CourseID, cert.Score, cert.DocumentURL); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepository) SetDocumentURL(ctx context.Context, certificateID, url string) error {
	const query = `UPDATE certificates SET document_url = ? WHERE certificate_id = ?`
	if _, err := r.db.ExecContext(ctx, query, url, certificateID); err != nil {
		return fmt.Errorf("set document url: %w", err)
	}
	return nil
}

func (r *CertificateRepository) ListByUser(ctx context.Context, userID int64) ([]models.Certificate, error) {
	const query = `
SELECT id, certificate_id, user_id, course_id, score, document_url, issued_at
FROM certificates WHERE user_id = ? ORDER BY issued_at ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certs []models.Certificate
	for rows.Next() {
		var c models.Certificate
		var docURL sql.NullString
		if err := rows.Scan(&c.ID, &c.CertificateID, &c.UserID, &c.CourseID, &c.Score, &docURL, &c.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan certificate list: %w", err)
		}
		c.DocumentURL = docURL.String
		certs = append(certs, c)
	}
	return certs, rows.Err()
}
