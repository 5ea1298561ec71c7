package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afelu/guardian/internal/course"
	"github.com/afelu/guardian/internal/models"
	"github.com/afelu/guardian/internal/repository"
)

// Completion thresholds. Standard courses need most of the modules done and a
// passing quiz; the premium program holds a higher bar for both.
const (
	standardCompletionPct = 80
	standardPassingScore  = 70
	premiumCompletionPct  = 90
	premiumPassingScore   = 85
)

const certIDAttempts = 5

// CompletionStatus reports whether a course is finished and why not.
type CompletionStatus struct {
	Completed      bool
	Percent        int
	RequiredPct    int
	QuizScore      *int
	RequiredScore  int
	MissingModules int
}

// CertificateService issues verifiable course certificates. Issuance is
// idempotent per user and course, and certificate ids are unique across the
// platform.
type CertificateService struct {
	catalog     *course.Catalog
	enrollments EnrollmentStore
	certs       CertificateStore
	users       UserStore
	docs        DocumentStore
	log         *slog.Logger
}

func NewCertificateService(catalog *course.Catalog, enrollments EnrollmentStore, certs CertificateStore, users UserStore, docs DocumentStore, log *slog.Logger) *CertificateService {
	return &CertificateService{
		catalog:     catalog,
		enrollments: enrollments,
		certs:       certs,
		users:       users,
		docs:        docs,
		log:         log,
	}
}

func thresholds(c *course.Course) (completionPct, passingScore int) {
	if c.Type == course.TypePremium {
		return premiumCompletionPct, premiumPassingScore
	}
	return standardCompletionPct, standardPassingScore
}

// CheckCompletion evaluates the enrollment against the course's thresholds.
func (s *CertificateService) CheckCompletion(ctx context.Context, userID int64, courseID string) (*CompletionStatus, error) {
	c := s.catalog.Get(courseID)
	if c == nil {
		return nil, ErrCourseNotFound
	}
	enrollment, err := s.enrollments.Get(ctx, userID, courseID)
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
	requiredPct, requiredScore := thresholds(c)
	percent := len(completed) * 100 / len(c.Modules)

	status := &CompletionStatus{
		Percent:       percent,
		RequiredPct:   requiredPct,
		QuizScore:     enrollment.QuizScore,
		RequiredScore: requiredScore,
	}
	if percent < requiredPct {
		status.MissingModules = (requiredPct*len(c.Modules)+99)/100 - len(completed)
		return status, nil
	}
	if enrollment.QuizScore == nil || *enrollment.QuizScore < requiredScore {
		return status, nil
	}
	status.Completed = true
	return status, nil
}

// Issue grants the certificate for a finished course. Calling it again for
// the same user and course returns the existing certificate unchanged.
func (s *CertificateService) Issue(ctx context.Context, telegramID int64, courseID string) (*models.Certificate, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrNeedRedeem
	}

	existing, err := s.certs.FindByUserCourse(ctx, user.ID, courseID)
	if err != nil {
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	status, err := s.CheckCompletion(ctx, user.ID, courseID)
	if err != nil {
		return nil, err
	}
	if !status.Completed {
		return nil, ErrCourseIncomplete
	}

	c := s.catalog.Get(courseID)
	certID, err := s.newCertificateID(ctx, c)
	if err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		CertificateID: certID,
		UserID:        user.ID,
		CourseID:      courseID,
		Score:         *status.QuizScore,
	}
	if err := s.certs.Create(ctx, cert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Concurrent issue for the same user and course. Return
			// whichever row won.
			return s.certs.FindByUserCourse(ctx, user.ID, courseID)
		}
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	if err := s.enrollments.SetCompletedAt(ctx, user.ID, courseID); err != nil {
		s.log.Warn("mark course completed failed", "error", err)
	}

	if s.docs != nil {
		url, err := s.docs.UploadCertificate(ctx, certID, renderDocument(cert, c))
		if err != nil {
			s.log.Warn("certificate upload failed", "certificate_id", certID, "error", err)
		} else if err := s.certs.SetDocumentURL(ctx, certID, url); err != nil {
			s.log.Warn("save document url failed", "certificate_id", certID, "error", err)
		} else {
			cert.DocumentURL = url
		}
	}

	s.log.Info("certificate issued", "certificate_id", certID, "course", courseID, "telegram_id", telegramID)
	return cert, nil
}

// newCertificateID draws random ids until one is free, bounded so a broken
// store cannot spin forever. Premium certificates carry the AFCP prefix.
func (s *CertificateService) newCertificateID(ctx context.Context, c *course.Course) (string, error) {
	prefix := "AFC"
	if c.Type == course.TypePremium {
		prefix = "AFCP"
	}
	year := time.Now().UTC().Year()

	for attempt := 0; attempt < certIDAttempts; attempt++ {
		id := fmt.Sprintf("%s-%d-%06d", prefix, year, randomSerial())
		exists, err := s.certs.ExistsCertificateID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check certificate id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique certificate id after %d attempts", certIDAttempts)
}

func randomSerial() int {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// a time-derived serial rather than crash mid-issuance.
		return int(time.Now().UnixNano() % 1000000)
	}
	return int(binary.BigEndian.Uint64(buf[:]) % 1000000)
}

// UserCertificates lists everything the user has earned.
func (s *CertificateService) UserCertificates(ctx context.Context, telegramID int64) ([]models.Certificate, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrNeedRedeem
	}
	return s.certs.ListByUser(ctx, user.ID)
}

// Verify resolves a certificate id to its record for public verification.
func (s *CertificateService) Verify(ctx context.Context, certificateID string) (*models.Certificate, *course.Course, error) {
	cert, err := s.certs.FindByCertificateID(ctx, certificateID)
	if err != nil {
		return nil, nil, fmt.Errorf("find certificate: %w", err)
	}
	if cert == nil {
		return nil, nil, nil
	}
	return cert, s.catalog.Get(cert.CourseID), nil
}

func renderDocument(cert *models.Certificate, c *course.Course) []byte {
	doc := fmt.Sprintf(
		"CERTIFICATE OF COMPLETION\n\nCertificate ID: %s\nCourse: %s\nFinal Score: %d\nIssued: %s\n\nVerify at https://afelu.com/verify?id=%s\n",
		cert.CertificateID, c.Title, cert.Score, time.Now().UTC().Format("2006-01-02"), cert.CertificateID)
	return []byte(doc)
}
