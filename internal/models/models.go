package models

import "time"

type CodeStatus string

const (
	CodeStatusNew  CodeStatus = "NEW"
	CodeStatusUsed CodeStatus = "USED"
)

// Cost is the price of one paid action, split across the two quota pools.
type Cost struct {
	GPT   int
	Fetch int
}

type Sponsor struct {
	ID               int64
	Email            string
	StripeCustomerID string
	SubscriptionTier string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type AccessCode struct {
	ID         int64
	Code       string
	Status     CodeStatus
	SponsorID  int64
	RedeemedBy *int64
	UsedAt     *time.Time
	CreatedAt  time.Time
}

type User struct {
	ID           int64
	TelegramID   int64
	QuotaGPT     int
	QuotaFetch   int
	AccessCodeID *int64
	LastActive   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UsageLog struct {
	ID        int64
	UserID    int64
	Action    string
	Details   string
	CreatedAt time.Time
}

type CourseEnrollment struct {
	ID               int64
	UserID           int64
	CourseID         string
	CompletedModules string // JSON array of module ids
	QuizScore        *int
	CompletedAt      *time.Time
	CreatedAt        time.Time
}

type Certificate struct {
	ID            int64
	CertificateID string
	UserID        int64
	CourseID      string
	Score         int
	DocumentURL   string
	IssuedAt      time.Time
}

type Payment struct {
	ID              int64
	StripeSessionID string
	SponsorEmail    string
	PriceID         string
	Tier            string
	CodesGenerated  int
	BatchID         string
	Amount          int64
	Currency        string
	Status          string
	CreatedAt       time.Time
}
