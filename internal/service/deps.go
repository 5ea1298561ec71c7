package service

import (
	"context"
	"time"

	"github.com/afelu/guardian/internal/models"
	"github.com/afelu/guardian/internal/webfetch"
)

// The services depend on narrow interfaces so the data layer and the external
// clients can be swapped in tests.

type UserStore interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	ConsumeQuota(ctx context.Context, userID int64, gpt, fetch int) (bool, error)
	TouchLastActive(ctx context.Context, userID int64) error
}

type CodeStore interface {
	FindByCode(ctx context.Context, code string) (*models.AccessCode, error)
	Redeem(ctx context.Context, codeID, telegramID int64, gptGrant, fetchGrant int) (*models.User, bool, error)
	Create(ctx context.Context, code string, sponsorID int64) error
}

type SponsorStore interface {
	UpsertByEmail(ctx context.Context, email, stripeCustomerID, tier string) (*models.Sponsor, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
}

type EnrollmentStore interface {
	Get(ctx context.Context, userID int64, courseID string) (*models.CourseEnrollment, error)
	Create(ctx context.Context, userID int64, courseID string) error
	UpdateModules(ctx context.Context, userID int64, courseID, modulesJSON string) error
	SetQuizScore(ctx context.Context, userID int64, courseID string, score int) error
	SetCompletedAt(ctx context.Context, userID int64, courseID string) error
	ListByUser(ctx context.Context, userID int64) ([]models.CourseEnrollment, error)
}

type CertificateStore interface {
	FindByUserCourse(ctx context.Context, userID int64, courseID string) (*models.Certificate, error)
	FindByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error)
	ExistsCertificateID(ctx context.Context, certificateID string) (bool, error)
	Create(ctx context.Context, cert *models.Certificate) error
	ListByUser(ctx context.Context, userID int64) ([]models.Certificate, error)
	SetDocumentURL(ctx context.Context, certificateID, url string) error
}

type UsageLogger interface {
	Log(ctx context.Context, userID int64, action, details string) error
}

// Limiter is the shared fixed-window rate limiter.
type Limiter interface {
	Allow(ctx context.Context, bucket, id string, limit int, window time.Duration) (bool, error)
}

// ReplyCache stores chat replies keyed by prompt hash.
type ReplyCache interface {
	Get(ctx context.Context, bucket, id string) (string, error)
	Set(ctx context.Context, bucket, id, value string, ttl time.Duration) error
}

type ChatClient interface {
	ChatCompletion(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*webfetch.Result, error)
}

type DocumentStore interface {
	UploadCertificate(ctx context.Context, certificateID string, document []byte) (string, error)
}

type Mailer interface {
	SendAccessCodes(to, tier string, codes []string) error
	SendBootcampWelcome(to string) error
}
