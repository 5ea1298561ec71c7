package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/afelu/guardian/internal/kvstore"
	"github.com/afelu/guardian/internal/models"
	"github.com/afelu/guardian/internal/webfetch"
)

// actionSpec fixes the price and rate limit of one paid action. The set is
// closed: adding an action means adding a row here.
type actionSpec struct {
	cost   models.Cost
	limit  int
	window time.Duration
}

var actionSpecs = map[string]actionSpec{
	"gpt":       {cost: models.Cost{GPT: 1}, limit: 20, window: time.Minute},
	"image":     {cost: models.Cost{GPT: 3}, limit: 5, window: time.Minute},
	"fetch":     {cost: models.Cost{Fetch: 1}, limit: 10, window: time.Minute},
	"translate": {cost: models.Cost{GPT: 1}, limit: 20, window: time.Minute},
	"news":      {cost: models.Cost{GPT: 1}, limit: 20, window: time.Minute},
	"summarize": {cost: models.Cost{GPT: 1, Fetch: 1}, limit: 10, window: time.Minute},
	"quiz":      {cost: models.Cost{GPT: 1}, limit: 20, window: time.Minute},
}

// ActionCost reports what an action charges, for help and status output.
func ActionCost(action string) (models.Cost, bool) {
	spec, ok := actionSpecs[action]
	return spec.cost, ok
}

// ActionService executes the quota-gated actions. Quota is only consumed
// after the upstream call succeeds, and the decrement is conditional, so a
// failed OpenAI call or a lost race never leaves the user short.
type ActionService struct {
	users    UserStore
	usage    UsageLogger
	limiter  Limiter
	cache    ReplyCache
	chat     ChatClient
	fetcher  Fetcher
	cacheTTL time.Duration
	log      *slog.Logger
}

func NewActionService(users UserStore, usage UsageLogger, limiter Limiter, cache ReplyCache, chat ChatClient, fetcher Fetcher, cacheTTL time.Duration, log *slog.Logger) *ActionService {
	return &ActionService{
		users:    users,
		usage:    usage,
		limiter:  limiter,
		cache:    cache,
		chat:     chat,
		fetcher:  fetcher,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// run is the shared pipeline: rate limit, resolve user, precheck quota, call
// upstream, then consume quota and record usage.
func (s *ActionService) run(ctx context.Context, telegramID int64, action string, fn func(context.Context) (string, error)) (string, error) {
	spec, ok := actionSpecs[action]
	if !ok {
		return "", fmt.Errorf("unknown action %q", action)
	}

	allowed, err := s.limiter.Allow(ctx, action, fmt.Sprintf("%d", telegramID), spec.limit, spec.window)
	if err != nil {
		return "", fmt.Errorf("%s rate check: %w", action, err)
	}
	if !allowed {
		return "", ErrRateLimited
	}

	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return "", ErrNeedRedeem
	}
	if user.QuotaGPT < spec.cost.GPT || user.QuotaFetch < spec.cost.Fetch {
		return "", ErrQuotaExhausted
	}

	result, err := fn(ctx)
	if err != nil {
		return "", err
	}

	consumed, err := s.users.ConsumeQuota(ctx, user.ID, spec.cost.GPT, spec.cost.Fetch)
	if err != nil {
		return "", fmt.Errorf("consume quota: %w", err)
	}
	if !consumed {
		// Another concurrent action drained the balance between the
		// precheck and the decrement.
		return "", ErrQuotaExhausted
	}

	if err := s.usage.Log(ctx, user.ID, action, ""); err != nil {
		s.log.Warn("log usage failed", "action", action, "error", err)
	}
	if err := s.users.TouchLastActive(ctx, user.ID); err != nil {
		s.log.Warn("touch last active failed", "error", err)
	}
	return result, nil
}

// Chat answers a free-form prompt. Identical prompts within the cache TTL are
// served from Redis but still charged, so cached replies cannot be farmed.
func (s *ActionService) Chat(ctx context.Context, telegramID int64, prompt string) (string, error) {
	return s.run(ctx, telegramID, "gpt", func(ctx context.Context) (string, error) {
		return s.cachedCompletion(ctx, prompt)
	})
}

func (s *ActionService) cachedCompletion(ctx context.Context, prompt string) (string, error) {
	key := promptKey(prompt)
	if cached, err := s.cache.Get(ctx, "chat", key); err == nil {
		return cached, nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		s.log.Warn("chat cache read failed", "error", err)
	}

	reply, err := s.chat.ChatCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if err := s.cache.Set(ctx, "chat", key, reply, s.cacheTTL); err != nil {
		s.log.Warn("chat cache write failed", "error", err)
	}
	return reply, nil
}

// Image generates an image and returns its URL.
func (s *ActionService) Image(ctx context.Context, telegramID int64, prompt string) (string, error) {
	return s.run(ctx, telegramID, "image", func(ctx context.Context) (string, error) {
		url, err := s.chat.GenerateImage(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("generate image: %w", err)
		}
		return url, nil
	})
}

// Fetch downloads a page and returns its readable text.
func (s *ActionService) Fetch(ctx context.Context, telegramID int64, rawURL string) (string, error) {
	return s.run(ctx, telegramID, "fetch", func(ctx context.Context) (string, error) {
		res, err := s.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return "", err
		}
		return formatPage(res), nil
	})
}

// Translate renders the text in the target language.
func (s *ActionService) Translate(ctx context.Context, telegramID int64, lang, text string) (string, error) {
	prompt := fmt.Sprintf("Translate the following text to %s. Reply with the translation only.\n\n%s", lang, text)
	return s.run(ctx, telegramID, "translate", func(ctx context.Context) (string, error) {
		return s.cachedCompletion(ctx, prompt)
	})
}

// News summarizes recent developments on a topic.
func (s *ActionService) News(ctx context.Context, telegramID int64, topic string) (string, error) {
	prompt := fmt.Sprintf("Give a brief, neutral news-style summary of recent developments about: %s", topic)
	return s.run(ctx, telegramID, "news", func(ctx context.Context) (string, error) {
		return s.cachedCompletion(ctx, prompt)
	})
}

// Summarize fetches a page and condenses it, charging one fetch and one GPT
// credit.
func (s *ActionService) Summarize(ctx context.Context, telegramID int64, rawURL string) (string, error) {
	return s.run(ctx, telegramID, "summarize", func(ctx context.Context) (string, error) {
		res, err := s.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return "", err
		}
		prompt := fmt.Sprintf("Summarize this web page in a few short paragraphs.\nTitle: %s\n\n%s", res.Title, res.Text)
		reply, err := s.chat.ChatCompletion(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("summarize completion: %w", err)
		}
		return reply, nil
	})
}

// Quiz asks the model to grade a learner's answer for a course lesson and
// returns the feedback text.
func (s *ActionService) Quiz(ctx context.Context, telegramID int64, lessonTitle, question string) (string, error) {
	prompt := fmt.Sprintf("You are a course instructor. Lesson: %s. Write one short quiz question about it, then the answer on a new line.\nStudent request: %s", lessonTitle, question)
	return s.run(ctx, telegramID, "quiz", func(ctx context.Context) (string, error) {
		return s.cachedCompletion(ctx, prompt)
	})
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(prompt))))
	return hex.EncodeToString(sum[:])
}

func formatPage(res *webfetch.Result) string {
	if res.Title == "" {
		return res.Text
	}
	return res.Title + "\n\n" + res.Text
}
