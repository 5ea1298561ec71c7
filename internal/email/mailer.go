// Package email sends the transactional mail the platform produces: access
// code deliveries to sponsors, contact form tickets, and bootcamp welcomes.
package email

import (
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/afelu/guardian/internal/config"
)

type Mailer struct {
	dialer *gomail.Dialer
	from   string
	admin  string
	log    *slog.Logger
}

func NewMailer(cfg config.Config, log *slog.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.FromEmail,
		admin:  cfg.SupportEmail,
		log:    log,
	}
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	m.log.Info("email sent", "to", to, "subject", subject)
	return nil
}

// SendAccessCodes delivers a fresh batch of codes to the sponsor who paid for
// them.
func (m *Mailer) SendAccessCodes(to, tier string, codes []string) error {
	var sb strings.Builder
	sb.WriteString("Thank you for sponsoring access to Afelu!\n\n")
	fmt.Fprintf(&sb, "Your %s plan includes %d access code(s):\n\n", tier, len(codes))
	for _, code := range codes {
		fmt.Fprintf(&sb, "    %s\n", code)
	}
	sb.WriteString("\nEach code unlocks AI chat and web access for one person.\n")
	sb.WriteString("Share a code and have them send /redeem <code> to the Telegram bot.\n")
	return m.send(to, "Your Afelu access codes", sb.String())
}

// SendContactForm forwards a contact submission to the admin inbox.
func (m *Mailer) SendContactForm(ticketID, name, replyTo, subject, message string) error {
	body := fmt.Sprintf("Ticket: %s\nFrom: %s <%s>\n\n%s\n", ticketID, name, replyTo, message)
	return m.send(m.admin, "[contact] "+subject, body)
}

// SendBootcampWelcome confirms a premium enrollment.
func (m *Mailer) SendBootcampWelcome(to string) error {
	body := "Welcome to the AI Training Bootcamp!\n\n" +
		"Your enrollment is confirmed. Open the Telegram bot and send /bootcamp\n" +
		"to see the program structure, then /lesson 1.1 to start week one.\n\n" +
		"Your mentoring sessions will be scheduled by email within two business days.\n"
	return m.send(to, "Welcome to the AI Training Bootcamp", body)
}
