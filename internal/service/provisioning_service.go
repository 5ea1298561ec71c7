package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/afelu/guardian/internal/config"
	"github.com/afelu/guardian/internal/models"
	"github.com/afelu/guardian/internal/repository"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const codeMintAttempts = 10

// ProvisioningService turns completed Stripe checkouts into batches of access
// codes and mails them to the sponsor.
type ProvisioningService struct {
	plans    map[string]config.PricePlan
	sponsors SponsorStore
	codes    CodeStore
	payments PaymentStore
	mailer   Mailer
	log      *slog.Logger
}

func NewProvisioningService(plans map[string]config.PricePlan, sponsors SponsorStore, codes CodeStore, payments PaymentStore, mailer Mailer, log *slog.Logger) *ProvisioningService {
	return &ProvisioningService{
		plans:    plans,
		sponsors: sponsors,
		codes:    codes,
		payments: payments,
		mailer:   mailer,
		log:      log,
	}
}

// CheckoutInfo carries the fields the webhook extracts from a completed
// Stripe session.
type CheckoutInfo struct {
	SessionID        string
	CustomerEmail    string
	StripeCustomerID string
	PriceID          string
	Amount           int64
	Currency         string
}

// ProvisionCodes handles one checkout.session.completed event. Unknown price
// ids are rejected, and replayed sessions are ignored, so webhook retries
// never double-provision.
func (s *ProvisioningService) ProvisionCodes(ctx context.Context, info CheckoutInfo) error {
	plan, ok := s.plans[info.PriceID]
	if !ok {
		return ErrUnknownPrice
	}

	existing, err := s.payments.FindBySessionID(ctx, info.SessionID)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if existing != nil {
		s.log.Info("session already provisioned", "session_id", info.SessionID)
		return nil
	}

	sponsor, err := s.sponsors.UpsertByEmail(ctx, info.CustomerEmail, info.StripeCustomerID, plan.Tier)
	if err != nil {
		return fmt.Errorf("upsert sponsor: %w", err)
	}

	codes := make([]string, 0, plan.Codes)
	for i := 0; i < plan.Codes; i++ {
		code, err := s.mintCode(ctx, sponsor.ID)
		if err != nil {
			return err
		}
		codes = append(codes, code)
	}

	batchID := uuid.NewString()
	payment := &models.Payment{
		StripeSessionID: info.SessionID,
		SponsorEmail:    info.CustomerEmail,
		PriceID:         info.PriceID,
		Tier:            plan.Tier,
		CodesGenerated:  len(codes),
		BatchID:         batchID,
		Amount:          info.Amount,
		Currency:        info.Currency,
		Status:          "completed",
	}
	if err := s.payments.Create(ctx, payment); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("record payment: %w", err)
	}

	if err := s.mailer.SendAccessCodes(info.CustomerEmail, plan.Tier, codes); err != nil {
		// The codes exist either way; the sponsor can be re-mailed from
		// the admin panel.
		s.log.Error("access code email failed", "sponsor", info.CustomerEmail, "batch_id", batchID, "error", err)
	}

	s.log.Info("codes provisioned", "sponsor", info.CustomerEmail, "tier", plan.Tier, "count", len(codes), "batch_id", batchID)
	return nil
}

// MintBatch creates codes outside of a Stripe checkout, for the admin panel.
// The sponsor is created or updated and receives the batch by email.
func (s *ProvisioningService) MintBatch(ctx context.Context, email, tier string, count int) ([]string, error) {
	if count < 1 || count > 100 {
		return nil, fmt.Errorf("batch size %d out of range", count)
	}
	sponsor, err := s.sponsors.UpsertByEmail(ctx, email, "", tier)
	if err != nil {
		return nil, fmt.Errorf("upsert sponsor: %w", err)
	}
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := s.mintCode(ctx, sponsor.ID)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := s.mailer.SendAccessCodes(email, tier, codes); err != nil {
		s.log.Error("access code email failed", "sponsor", email, "error", err)
	}
	s.log.Info("admin batch minted", "sponsor", email, "tier", tier, "count", count)
	return codes, nil
}

// mintCode draws random codes until one clears the unique index.
func (s *ProvisioningService) mintCode(ctx context.Context, sponsorID int64) (string, error) {
	for attempt := 0; attempt < codeMintAttempts; attempt++ {
		code, err := generateAccessCode()
		if err != nil {
			return "", err
		}
		err = s.codes.Create(ctx, code, sponsorID)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		return "", fmt.Errorf("store access code: %w", err)
	}
	return "", fmt.Errorf("could not mint a unique access code after %d attempts", codeMintAttempts)
}

func generateAccessCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random code bytes: %w", err)
	}
	chars := make([]byte, 8)
	for i, b := range buf {
		chars[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return fmt.Sprintf("ET-%s-%s", chars[:4], chars[4:]), nil
}
