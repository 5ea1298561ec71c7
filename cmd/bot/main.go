package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/afelu/guardian/internal/config"
	"github.com/afelu/guardian/internal/course"
	"github.com/afelu/guardian/internal/database"
	"github.com/afelu/guardian/internal/email"
	"github.com/afelu/guardian/internal/kvstore"
	"github.com/afelu/guardian/internal/openai"
	"github.com/afelu/guardian/internal/repository"
	"github.com/afelu/guardian/internal/server"
	"github.com/afelu/guardian/internal/service"
	"github.com/afelu/guardian/internal/storage"
	"github.com/afelu/guardian/internal/telegram"
	"github.com/afelu/guardian/internal/webfetch"
	"github.com/afelu/guardian/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	kv, err := kvstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	if err != nil {
		log.Fatalf("redis connect: %v", err)
	}
	defer kv.Close()

	catalog, err := course.Load()
	if err != nil {
		log.Fatalf("course catalog: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	openaiClient := openai.NewClient(cfg, logr)
	fetcher := webfetch.NewClient(logr)
	mailer := email.NewMailer(cfg, logr)

	userRepo := repository.NewUserRepository(db)
	codeRepo := repository.NewAccessCodeRepository(db)
	sponsorRepo := repository.NewSponsorRepository(db)
	usageRepo := repository.NewUsageLogRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	var docs service.DocumentStore
	if cfg.S3Bucket != "" {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		docs = uploader
	} else {
		logr.Warn("s3 not configured, certificate documents disabled")
	}

	redemptionService := service.NewRedemptionService(codeRepo, userRepo, kv, usageRepo, cfg.GPTQuotaGrant, cfg.FetchQuotaGrant, logr)
	actionService := service.NewActionService(userRepo, usageRepo, kv, kv, openaiClient, fetcher, cfg.ChatCacheTTL, logr)
	courseService := service.NewCourseService(catalog, enrollmentRepo, userRepo, usageRepo, logr)
	certService := service.NewCertificateService(catalog, enrollmentRepo, certRepo, userRepo, docs, logr)
	provisioningService := service.NewProvisioningService(cfg.PricePlans, sponsorRepo, codeRepo, paymentRepo, mailer, logr)
	paymentService := service.NewPaymentService(cfg, provisioningService, paymentRepo, mailer, logr)

	bot := telegram.NewBot(cfg, botAPI, logr, userRepo, redemptionService, actionService, courseService, certService)

	contactHandler := server.NewContactHandler(mailer, kv, logr)
	httpServer := server.NewServer(cfg, logr, db, paymentService, provisioningService, certService, kv, contactHandler,
		sponsorRepo, codeRepo, paymentRepo, userRepo, usageRepo, statsRepo)
	go func() {
		if err := httpServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("http server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
