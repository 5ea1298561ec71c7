package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afelu/guardian/internal/service"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	contactLimit  = 5
	contactWindow = time.Hour
)

type ContactMailer interface {
	SendContactForm(ticketID, name, replyTo, subject, message string) error
}

// ContactHandler accepts contact form submissions, validates them and mails a
// ticket to the support inbox.
type ContactHandler struct {
	mailer  ContactMailer
	limiter service.Limiter
	log     *slog.Logger
}

func NewContactHandler(mailer ContactMailer, limiter service.Limiter, log *slog.Logger) *ContactHandler {
	return &ContactHandler{mailer: mailer, limiter: limiter, log: log}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Validate enforces field lengths and the email shape.
func (r *contactRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Message = strings.TrimSpace(r.Message)

	if n := len(r.Name); n < 2 || n > 100 {
		return fmt.Errorf("name must be 2-100 characters")
	}
	if !emailPattern.MatchString(r.Email) {
		return fmt.Errorf("email address is invalid")
	}
	if n := len(r.Subject); n < 5 || n > 200 {
		return fmt.Errorf("subject must be 5-200 characters")
	}
	if n := len(r.Message); n < 10 || n > 2000 {
		return fmt.Errorf("message must be 10-2000 characters")
	}
	return nil
}

func (h *ContactHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	allowed, err := h.limiter.Allow(r.Context(), "contact", ip, contactLimit, contactWindow)
	if err != nil {
		h.log.Error("contact rate check", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Error(w, "too many submissions, try again later", http.StatusTooManyRequests)
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ticketID := uuid.NewString()
	// The sender gets their ticket id immediately; delivery happens in the
	// background.
	go func() {
		if err := h.mailer.SendContactForm(ticketID, req.Name, req.Email, req.Subject, req.Message); err != nil {
			h.log.Error("contact email failed", "ticket_id", ticketID, "err", err)
		}
	}()

	h.log.Info("contact form accepted", "ticket_id", ticketID, "ip", ip)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"ticket_id": ticketID})
}

func clientIP(r *http.Request) string {
	// middleware.RealIP already rewrote RemoteAddr from the proxy headers.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
