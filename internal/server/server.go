// Package server exposes the public HTTP surface: the Stripe webhook, the
// contact form, bootcamp checkout, certificate verification, and the
// token-protected admin API.
package server

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/afelu/guardian/internal/config"
	"github.com/afelu/guardian/internal/repository"
	"github.com/afelu/guardian/internal/service"
)

const (
	maxWebhookBody = 64 << 10

	apiRateLimit  = 60
	apiRateWindow = time.Minute
)

type Server struct {
	cfg          config.Config
	log          *slog.Logger
	db           *sql.DB
	payments     *service.PaymentService
	provisioning *service.ProvisioningService
	certs        *service.CertificateService
	limiter      service.Limiter
	contact      *ContactHandler
	sponsors     *repository.SponsorRepository
	codes        *repository.AccessCodeRepository
	paymentRepo  *repository.PaymentRepository
	users        *repository.UserRepository
	usage        *repository.UsageLogRepository
	stats        *repository.StatsRepository
	started      time.Time
	router       *chi.Mux
}

func NewServer(
	cfg config.Config,
	log *slog.Logger,
	db *sql.DB,
	payments *service.PaymentService,
	provisioning *service.ProvisioningService,
	certs *service.CertificateService,
	limiter service.Limiter,
	contact *ContactHandler,
	sponsors *repository.SponsorRepository,
	codes *repository.AccessCodeRepository,
	paymentRepo *repository.PaymentRepository,
	users *repository.UserRepository,
	usage *repository.UsageLogRepository,
	stats *repository.StatsRepository,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:          cfg,
		log:          log,
		db:           db,
		payments:     payments,
		provisioning: provisioning,
		certs:        certs,
		limiter:      limiter,
		contact:      contact,
		sponsors:     sponsors,
		codes:        codes,
		paymentRepo:  paymentRepo,
		users:        users,
		usage:        usage,
		stats:        stats,
		started:      time.Now(),
		router:       r,
	}

	r.Use(s.rateLimitMiddleware())

	r.Post("/api/stripe-webhook", s.handleStripeWebhook)
	r.Post("/api/contact/submit", s.contact.HandleSubmit)
	r.Post("/api/bootcamp/checkout", s.handleBootcampCheckout)
	r.Get("/api/bootcamp/success", s.handleBootcampSuccess)
	r.Get("/api/verify/{id}", s.handleVerifyCertificate)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)

	r.Group(func(protected chi.Router) {
		protected.Use(s.bearerAuthMiddleware())
		protected.Get("/api/admin/dashboard", s.handleDashboard)
		protected.Get("/api/admin/sponsors", s.handleListSponsors)
		protected.Get("/api/admin/sponsors/{id}/codes", s.handleSponsorCodes)
		protected.Post("/api/admin/codes", s.handleMintCodes)
		protected.Get("/api/admin/payments", s.handleListPayments)
		protected.Get("/api/admin/users/recent", s.handleRecentUsers)
	})

	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", "err", err)
		}
	}()

	s.log.Info("http server listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleStripeWebhook verifies the event signature against the raw body and
// processes checkout completions. Processing failures return 500 so Stripe
// retries; permanently bad events are acknowledged to stop the retry loop.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), s.cfg.StripeWebhookSecret)
	if err != nil {
		s.log.Warn("webhook signature rejected", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if event.Type != "checkout.session.completed" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		s.log.Error("decode checkout session", "err", err)
		http.Error(w, "bad event payload", http.StatusBadRequest)
		return
	}

	if err := s.payments.HandleCheckoutCompleted(r.Context(), sess.ID); err != nil {
		if errors.Is(err, service.ErrUnknownPrice) {
			// Retrying will not make the price known. Acknowledge and alert.
			s.log.Error("checkout with unknown price", "session_id", sess.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		s.log.Error("process checkout", "session_id", sess.ID, "err", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type checkoutRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleBootcampCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	url, err := s.payments.CreateBootcampCheckout(r.Context(), req.Email)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleBootcampSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	payment, err := s.payments.BootcampSession(r.Context(), sessionID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if payment == nil {
		// The webhook may still be in flight; tell the browser to wait.
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "enrolled",
		"email":  payment.SponsorEmail,
	})
}

func (s *Server) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	cert, course, err := s.certs.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if cert == nil {
		http.Error(w, "certificate not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"certificate_id": cert.CertificateID,
		"score":          cert.Score,
		"issued_at":      cert.IssuedAt.Format("2006-01-02"),
	}
	if course != nil {
		resp["course"] = course.Title
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Error("health check db ping", "err", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := s.stats.Overview(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	usage, err := s.usage.StatsSince(r.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"overview":  overview,
		"usage_24h": usage,
	})
}

func (s *Server) handleListSponsors(w http.ResponseWriter, r *http.Request) {
	sponsors, err := s.sponsors.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sponsors)
}

func (s *Server) handleSponsorCodes(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	codes, err := s.codes.ListBySponsor(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, codes)
}

type mintRequest struct {
	Email string `json:"email"`
	Tier  string `json:"tier"`
	Count int    `json:"count"`
}

func (s *Server) handleMintCodes(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Tier == "" {
		http.Error(w, "email and tier required", http.StatusBadRequest)
		return
	}
	codes, err := s.provisioning.MintBatch(r.Context(), req.Email, req.Tier, req.Count)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"codes": codes})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.paymentRepo.List(r.Context(), 100)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleRecentUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.RecentUsers(r.Context(), 50)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

// rateLimitMiddleware caps each client IP across the whole API. The limit is
// generous; it exists to blunt abuse, not to meter normal traffic. On limiter
// errors the request goes through.
func (s *Server) rateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := s.limiter.Allow(r.Context(), "http", clientIP(r), apiRateLimit, apiRateWindow)
			if err != nil {
				s.log.Warn("rate limiter unavailable", "err", err)
			} else if !allowed {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) bearerAuthMiddleware() func(http.Handler) http.Handler {
	expected := "Bearer " + s.cfg.AdminPassword
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}
