package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afelu/guardian/internal/models"
)

type EnrollmentRepository struct {
	db *sql.DB
}

func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) Get(ctx context.Context, userID int64, courseID string) (*models.CourseEnrollment, error) {
	const query = `
SELECT id, user_id, course_id, COALESCE(completed_modules, ''), quiz_score, completed_at, created_at
FROM course_enrollments WHERE user_id = ? AND course_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID, courseID)
	var e models.CourseEnrollment
	var quizScore sql.NullInt64
	var completedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.CompletedModules, &quizScore, &completedAt, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}
	if quizScore.Valid {
		s := int(quizScore.Int64)
		e.QuizScore = &s
	}
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	return &e, nil
}

func (r *EnrollmentRepository) Create(ctx context.Context, userID int64, courseID string) error {
	const query = `
INSERT INTO course_enrollments (user_id, course_id, completed_modules)
VALUES (?, ?, '[]')
ON DUPLICATE KEY UPDATE course_id = course_id`
	if _, err := r.db.ExecContext(ctx, query, userID, courseID); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) UpdateModules(ctx context.Context, userID int64, courseID, modulesJSON string) error {
	const query = `
UPDATE course_enrollments SET completed_modules = ? WHERE user_id = ? AND course_id = ?`
	if _, err := r.db.ExecContext(ctx, query, modulesJSON, userID, courseID); err != nil {
		return fmt.Errorf("update modules: %w", err)
	}
	return nil
}

// SetQuizScore keeps the best score across attempts.
func (r *EnrollmentRepository) SetQuizScore(ctx context.Context, userID int64, courseID string, score int) error {
	const query = `
UPDATE course_enrollments SET quiz_score = GREATEST(COALESCE(quiz_score, 0), ?)
WHERE user_id = ? AND course_id = ?`
	if _, err := r.db.ExecContext(ctx, query, score, userID, courseID); err != nil {
		return fmt.Errorf("set quiz score: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) SetCompletedAt(ctx context.Context, userID int64, courseID string) error {
	const query = `
UPDATE course_enrollments SET completed_at = NOW()
WHERE user_id = ? AND course_id = ? AND completed_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, courseID); err != nil {
		return fmt.Errorf("set completed at: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID int64) ([]models.CourseEnrollment, error) {
	const query = `
SELECT id, user_id, course_id, COALESCE(completed_modules, ''), quiz_score, completed_at, created_at
FROM course_enrollments WHERE user_id = ? ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []models.CourseEnrollment
	for rows.Next() {
		var e models.CourseEnrollment
		var quizScore sql.NullInt64
		var completedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.CompletedModules, &quizScore, &completedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment list: %w", err)
		}
		if quizScore.Valid {
			s := int(quizScore.Int64)
			e.QuizScore = &s
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
