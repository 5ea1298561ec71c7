package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"

	"github.com/afelu/guardian/internal/config"
	"github.com/afelu/guardian/internal/models"
	"github.com/afelu/guardian/internal/repository"
)

const bootcampProduct = "bootcamp"

// PaymentService fronts Stripe Checkout. Sponsor plans are provisioned into
// access code batches; the bootcamp is a one-off purchase that unlocks the
// premium course.
type PaymentService struct {
	provisioning  *ProvisioningService
	payments      PaymentStore
	mailer        Mailer
	bootcampPrice int64
	domain        string
	log           *slog.Logger
}

func NewPaymentService(cfg config.Config, provisioning *ProvisioningService, payments PaymentStore, mailer Mailer, log *slog.Logger) *PaymentService {
	stripe.Key = cfg.StripeSecretKey
	return &PaymentService{
		provisioning:  provisioning,
		payments:      payments,
		mailer:        mailer,
		bootcampPrice: cfg.BootcampPriceCents,
		domain:        cfg.Domain,
		log:           log,
	}
}

// CreateBootcampCheckout opens a Checkout session for the premium program and
// returns the hosted payment URL.
func (s *PaymentService) CreateBootcampCheckout(ctx context.Context, email string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String("AI Training Bootcamp"),
						Description: stripe.String("4-week intensive professional AI training program"),
					},
					UnitAmount: stripe.Int64(s.bootcampPrice),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.domain + "/api/bootcamp/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.domain + "/bootcamp"),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx
	params.AddMetadata("product", bootcampProduct)

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	s.log.Info("bootcamp checkout created", "session_id", sess.ID)
	return sess.URL, nil
}

// HandleCheckoutCompleted processes a verified checkout.session.completed
// event. It reloads the session with line items expanded, then routes to the
// bootcamp or sponsor provisioning flow.
func (s *PaymentService) HandleCheckoutCompleted(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return fmt.Errorf("load checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		s.log.Warn("checkout completed but unpaid", "session_id", sessionID, "payment_status", sess.PaymentStatus)
		return nil
	}

	if sess.Metadata["product"] == bootcampProduct {
		return s.handleBootcamp(ctx, sess)
	}

	info := CheckoutInfo{
		SessionID:     sess.ID,
		CustomerEmail: customerEmail(sess),
		Amount:        sess.AmountTotal,
		Currency:      string(sess.Currency),
	}
	if sess.Customer != nil {
		info.StripeCustomerID = sess.Customer.ID
	}
	if sess.LineItems != nil && len(sess.LineItems.Data) > 0 && sess.LineItems.Data[0].Price != nil {
		info.PriceID = sess.LineItems.Data[0].Price.ID
	}
	return s.provisioning.ProvisionCodes(ctx, info)
}

func (s *PaymentService) handleBootcamp(ctx context.Context, sess *stripe.CheckoutSession) error {
	existing, err := s.payments.FindBySessionID(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if existing != nil {
		return nil
	}

	email := customerEmail(sess)
	payment := &models.Payment{
		StripeSessionID: sess.ID,
		SponsorEmail:    email,
		Tier:            "Bootcamp",
		Amount:          sess.AmountTotal,
		Currency:        string(sess.Currency),
		Status:          "completed",
	}
	if err := s.payments.Create(ctx, payment); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("record bootcamp payment: %w", err)
	}

	if email != "" {
		if err := s.mailer.SendBootcampWelcome(email); err != nil {
			s.log.Error("bootcamp welcome email failed", "email", email, "error", err)
		}
	}
	s.log.Info("bootcamp enrollment paid", "session_id", sess.ID, "email", email)
	return nil
}

// BootcampSession confirms that a session id from the success redirect
// belongs to a recorded, paid bootcamp purchase.
func (s *PaymentService) BootcampSession(ctx context.Context, sessionID string) (*models.Payment, error) {
	payment, err := s.payments.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return payment, nil
}

func customerEmail(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email
	}
	return sess.CustomerEmail
}
