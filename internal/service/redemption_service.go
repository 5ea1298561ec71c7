package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/afelu/guardian/internal/models"
	"github.com/afelu/guardian/internal/repository"
)

var codePattern = regexp.MustCompile(`^ET-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

const (
	redeemLimit  = 3
	redeemWindow = 5 * time.Minute
)

// RedemptionService turns access codes into quota grants. A successful
// redemption marks the code USED and credits the user in one transaction.
type RedemptionService struct {
	codes      CodeStore
	users      UserStore
	limiter    Limiter
	usage      UsageLogger
	gptGrant   int
	fetchGrant int
	log        *slog.Logger
}

func NewRedemptionService(codes CodeStore, users UserStore, limiter Limiter, usage UsageLogger, gptGrant, fetchGrant int, log *slog.Logger) *RedemptionService {
	return &RedemptionService{
		codes:      codes,
		users:      users,
		limiter:    limiter,
		usage:      usage,
		gptGrant:   gptGrant,
		fetchGrant: fetchGrant,
		log:        log,
	}
}

// Redeem validates and consumes an access code for the Telegram user. The
// format check runs before the rate limiter so obvious typos do not burn
// attempts, but lookups of well-formed codes do.
func (s *RedemptionService) Redeem(ctx context.Context, telegramID int64, rawCode string) (*models.User, bool, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if !codePattern.MatchString(code) {
		return nil, false, ErrCodeInvalid
	}

	allowed, err := s.limiter.Allow(ctx, "redeem", fmt.Sprintf("%d", telegramID), redeemLimit, redeemWindow)
	if err != nil {
		return nil, false, fmt.Errorf("redeem rate check: %w", err)
	}
	if !allowed {
		return nil, false, ErrRateLimited
	}

	ac, err := s.codes.FindByCode(ctx, code)
	if err != nil {
		return nil, false, fmt.Errorf("find code: %w", err)
	}
	if ac == nil {
		return nil, false, ErrCodeInvalid
	}
	if ac.Status != models.CodeStatusNew {
		return nil, false, ErrCodeUsed
	}

	user, created, err := s.codes.Redeem(ctx, ac.ID, telegramID, s.gptGrant, s.fetchGrant)
	if err != nil {
		if errors.Is(err, repository.ErrCodeAlreadyUsed) {
			return nil, false, ErrCodeUsed
		}
		return nil, false, fmt.Errorf("redeem code: %w", err)
	}

	if err := s.usage.Log(ctx, user.ID, "redeem", fmt.Sprintf(`{"code":%q}`, code)); err != nil {
		s.log.Warn("log redemption failed", "error", err)
	}
	s.log.Info("code redeemed", "telegram_id", telegramID, "code", code, "new_user", created)
	return user, created, nil
}
