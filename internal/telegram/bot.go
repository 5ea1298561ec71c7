package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/afelu/guardian/internal/config"
	"github.com/afelu/guardian/internal/service"
	"github.com/afelu/guardian/internal/webfetch"
)

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	users      service.UserStore
	redemption *service.RedemptionService
	actions    *service.ActionService
	courses    *service.CourseService
	certs      *service.CertificateService
	commands   map[string]commandSpec
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, users service.UserStore, redemption *service.RedemptionService, actions *service.ActionService, courses *service.CourseService, certs *service.CertificateService) *Bot {
	b := &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		users:      users,
		redemption: redemption,
		actions:    actions,
		courses:    courses,
		certs:      certs,
	}
	b.commands = commandTable()
	return b
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.sendText(msg.Chat.ID, "Send /help to see what I can do.")
		return
	}

	spec, ok := b.commands[msg.Command()]
	if !ok {
		b.sendText(msg.Chat.ID, "Unknown command. Send /help for the full list.")
		return
	}

	args := msg.CommandArguments()
	if spec.needsArg && args == "" {
		b.sendText(msg.Chat.ID, "Usage: "+spec.usage)
		return
	}

	if err := spec.handler(ctx, b, msg, args); err != nil {
		if text := b.userMessage(err); text != "" {
			b.sendText(msg.Chat.ID, text)
			return
		}
		b.log.Error("command failed", "command", msg.Command(), "telegram_id", msg.From.ID, "error", err)
		b.sendText(msg.Chat.ID, "Something went wrong on our side. Please try again in a moment.")
	}
}

// userMessage maps the service sentinels to replies. An empty string means
// the error is internal and should not leak to the user.
func (b *Bot) userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrCodeInvalid):
		return "That code doesn't look right. Codes have the form ET-XXXX-XXXX."
	case errors.Is(err, service.ErrCodeUsed):
		return "This code has already been used. Each code works exactly once."
	case errors.Is(err, service.ErrRateLimited):
		return "You're going too fast. Please wait a minute and try again."
	case errors.Is(err, service.ErrNeedRedeem):
		return "You need an access code first. Send /redeem ET-XXXX-XXXX to get started."
	case errors.Is(err, service.ErrQuotaExhausted):
		return "Your quota is used up. Ask your sponsor for a new access code."
	case errors.Is(err, service.ErrCourseNotFound):
		ids := strings.Join(b.courses.Catalog().FreeIDs(), ", ")
		return "Course not found. Available courses: " + ids + ". See /courses."
	case errors.Is(err, service.ErrLessonNotFound):
		return "Lesson not found. Try /lesson 1.1, or /courses to browse."
	case errors.Is(err, service.ErrNotEnrolled):
		return "You're not enrolled in that course yet. Use /enroll <course> first."
	case errors.Is(err, service.ErrPremiumCourse):
		return "That's the premium bootcamp. Send /bootcamp for enrollment details."
	case errors.Is(err, service.ErrCourseIncomplete):
		return "Not quite there yet. Check /progress to see what's left."
	case errors.Is(err, webfetch.ErrInvalidURL):
		return "I can only fetch http(s) URLs. Example: /fetch https://example.com"
	case errors.Is(err, webfetch.ErrBlockedURL):
		return "That address can't be fetched."
	}
	return ""
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}
