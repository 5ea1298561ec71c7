package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/afelu/guardian/internal/course"
	"github.com/afelu/guardian/internal/models"
)

// Progress describes how far a user is through one course.
type Progress struct {
	Course           *course.Course
	CompletedModules []string
	TotalModules     int
	QuizScore        *int
	Completed        bool
}

func (p *Progress) Percent() int {
	if p.TotalModules == 0 {
		return 0
	}
	return len(p.CompletedModules) * 100 / p.TotalModules
}

// CourseService manages enrollment and lesson progress against the embedded
// catalog.
type CourseService struct {
	catalog     *course.Catalog
	enrollments EnrollmentStore
	users       UserStore
	usage       UsageLogger
	log         *slog.Logger
}

func NewCourseService(catalog *course.Catalog, enrollments EnrollmentStore, users UserStore, usage UsageLogger, log *slog.Logger) *CourseService {
	return &CourseService{
		catalog:     catalog,
		enrollments: enrollments,
		users:       users,
		usage:       usage,
		log:         log,
	}
}

func (s *CourseService) Catalog() *course.Catalog {
	return s.catalog
}

func (s *CourseService) resolveUser(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrNeedRedeem
	}
	return user, nil
}

// Enroll signs the user up for a free course. Premium courses go through the
// payment flow instead.
func (s *CourseService) Enroll(ctx context.Context, telegramID int64, courseID string) (*course.Course, error) {
	user, err := s.resolveUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	c := s.catalog.Get(courseID)
	if c == nil {
		return nil, ErrCourseNotFound
	}
	if c.Type == course.TypePremium {
		return nil, ErrPremiumCourse
	}
	if err := s.enrollments.Create(ctx, user.ID, courseID); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	if err := s.usage.Log(ctx, user.ID, "course_enrollment", fmt.Sprintf(`{"course":%q}`, courseID)); err != nil {
		s.log.Warn("log enrollment failed", "error", err)
	}
	return c, nil
}

// EnrollPremium records a paid enrollment. Called from the payment flow, not
// from a bot command.
func (s *CourseService) EnrollPremium(ctx context.Context, userID int64, courseID string) error {
	c := s.catalog.Get(courseID)
	if c == nil || c.Type != course.TypePremium {
		return ErrCourseNotFound
	}
	if err := s.enrollments.Create(ctx, userID, courseID); err != nil {
		return fmt.Errorf("premium enroll: %w", err)
	}
	return nil
}

// Lesson finds a lesson by number across all courses.
func (s *CourseService) Lesson(lessonID string) (*course.Course, *course.Module, error) {
	c, m := s.catalog.FindLesson(lessonID)
	if m == nil {
		return nil, nil, ErrLessonNotFound
	}
	return c, m, nil
}

// CompleteModule records one finished lesson and returns updated progress.
func (s *CourseService) CompleteModule(ctx context.Context, telegramID int64, courseID, moduleID string) (*Progress, error) {
	user, err := s.resolveUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	c := s.catalog.Get(courseID)
	if c == nil {
		return nil, ErrCourseNotFound
	}
	if c.Module(moduleID) == nil {
		return nil, ErrLessonNotFound
	}

	enrollment, err := s.enrollments.Get(ctx, user.ID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, ErrNotEnrolled
	}

	completed, err := decodeModules(enrollment.CompletedModules)
	if err != nil {
		return nil, err
	}
	if !contains(completed, moduleID) {
		completed = append(completed, moduleID)
		encoded, err := json.Marshal(completed)
		if err != nil {
			return nil, fmt.Errorf("encode modules: %w", err)
		}
		if err := s.enrollments.UpdateModules(ctx, user.ID, courseID, string(encoded)); err != nil {
			return nil, fmt.Errorf("save modules: %w", err)
		}
	}

	return &Progress{
		Course:           c,
		CompletedModules: completed,
		TotalModules:     len(c.Modules),
		QuizScore:        enrollment.QuizScore,
	}, nil
}

// RecordQuizScore stores a final quiz result. The repository keeps the best
// score across attempts.
func (s *CourseService) RecordQuizScore(ctx context.Context, telegramID int64, courseID string, score int) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("quiz score %d out of range", score)
	}
	user, err := s.resolveUser(ctx, telegramID)
	if err != nil {
		return err
	}
	if s.catalog.Get(courseID) == nil {
		return ErrCourseNotFound
	}
	enrollment, err := s.enrollments.Get(ctx, user.ID, courseID)
	if err != nil {
		return fmt.Errorf("load enrollment: %w", err)
	}
	if enrollment == nil {
		return ErrNotEnrolled
	}
	if err := s.enrollments.SetQuizScore(ctx, user.ID, courseID, score); err != nil {
		return fmt.Errorf("save quiz score: %w", err)
	}
	return nil
}

// UserProgress lists progress across all of the user's enrollments.
func (s *CourseService) UserProgress(ctx context.Context, telegramID int64) ([]Progress, error) {
	user, err := s.resolveUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}

	var out []Progress
	for _, e := range enrollments {
		c := s.catalog.Get(e.CourseID)
		if c == nil {
			continue
		}
		completed, err := decodeModules(e.CompletedModules)
		if err != nil {
			return nil, err
		}
		out = append(out, Progress{
			Course:           c,
			CompletedModules: completed,
			TotalModules:     len(c.Modules),
			QuizScore:        e.QuizScore,
			Completed:        e.CompletedAt != nil,
		})
	}
	return out, nil
}

func decodeModules(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var modules []string
	if err := json.Unmarshal([]byte(raw), &modules); err != nil {
		return nil, fmt.Errorf("decode modules: %w", err)
	}
	return modules, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
