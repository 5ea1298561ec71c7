package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/afelu/guardian/internal/config"
)

var mintedCodePattern = regexp.MustCompile(`^ET-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

type provisioningFixture struct {
	svc      *ProvisioningService
	sponsors *fakeSponsorStore
	codes    *fakeCodeStore
	payments *fakePaymentStore
	mailer   *fakeMailer
}

func newProvisioningFixture() *provisioningFixture {
	f := &provisioningFixture{
		sponsors: newFakeSponsorStore(),
		codes:    newFakeCodeStore(newFakeUserStore()),
		payments: newFakePaymentStore(),
		mailer:   &fakeMailer{},
	}
	plans := map[string]config.PricePlan{
		"price_friend":    {Tier: "Friend", Codes: 2},
		"price_family":    {Tier: "Family", Codes: 7},
		"price_community": {Tier: "Community", Codes: 20},
	}
	f.svc = NewProvisioningService(plans, f.sponsors, f.codes, f.payments, f.mailer, testLogger())
	return f
}

func checkout(priceID string) CheckoutInfo {
	return CheckoutInfo{
		SessionID:     "cs_test_123",
		CustomerEmail: "sponsor@example.com",
		PriceID:       priceID,
		Amount:        500,
		Currency:      "usd",
	}
}

func TestProvisionCodesPerPlan(t *testing.T) {
	tests := []struct {
		priceID   string
		wantCodes int
		wantTier  string
	}{
		{"price_friend", 2, "Friend"},
		{"price_family", 7, "Family"},
		{"price_community", 20, "Community"},
	}

	for _, tt := range tests {
		t.Run(tt.wantTier, func(t *testing.T) {
			f := newProvisioningFixture()
			if err := f.svc.ProvisionCodes(context.Background(), checkout(tt.priceID)); err != nil {
				t.Fatalf("ProvisionCodes: %v", err)
			}
			if len(f.codes.codes) != tt.wantCodes {
				t.Errorf("codes created = %d, want %d", len(f.codes.codes), tt.wantCodes)
			}
			for code := range f.codes.codes {
				if !mintedCodePattern.MatchString(code) {
					t.Errorf("code %q does not match the expected shape", code)
				}
			}
			if len(f.mailer.codeBatches) != 1 || len(f.mailer.codeBatches[0]) != tt.wantCodes {
				t.Errorf("mailed batches = %v, want one batch of %d", f.mailer.codeBatches, tt.wantCodes)
			}
			payment, _ := f.payments.FindBySessionID(context.Background(), "cs_test_123")
			if payment == nil || payment.Tier != tt.wantTier || payment.BatchID == "" {
				t.Errorf("payment record = %+v", payment)
			}
		})
	}
}

func TestProvisionRejectsUnknownPrice(t *testing.T) {
	f := newProvisioningFixture()
	err := f.svc.ProvisionCodes(context.Background(), checkout("price_bogus"))
	if !errors.Is(err, ErrUnknownPrice) {
		t.Fatalf("err = %v, want ErrUnknownPrice", err)
	}
	if len(f.codes.codes) != 0 {
		t.Error("no codes may be minted for an unknown price")
	}
}

func TestProvisionReplayedSessionIgnored(t *testing.T) {
	f := newProvisioningFixture()
	info := checkout("price_friend")
	if err := f.svc.ProvisionCodes(context.Background(), info); err != nil {
		t.Fatalf("first ProvisionCodes: %v", err)
	}
	if err := f.svc.ProvisionCodes(context.Background(), info); err != nil {
		t.Fatalf("replay ProvisionCodes: %v", err)
	}
	if len(f.codes.codes) != 2 {
		t.Errorf("codes = %d, want 2 (replay must not double-provision)", len(f.codes.codes))
	}
}

func TestMintRetriesOnCollision(t *testing.T) {
	f := newProvisioningFixture()
	f.codes.forceDuplicates = 3

	if err := f.svc.ProvisionCodes(context.Background(), checkout("price_friend")); err != nil {
		t.Fatalf("ProvisionCodes: %v", err)
	}
	if len(f.codes.codes) != 2 {
		t.Errorf("codes = %d, want 2", len(f.codes.codes))
	}
	if f.codes.createCalls != 5 {
		t.Errorf("create calls = %d, want 5 (three collisions plus two inserts)", f.codes.createCalls)
	}
}

func TestMintGivesUpAfterBoundedAttempts(t *testing.T) {
	f := newProvisioningFixture()
	f.codes.forceDuplicates = 1000

	if err := f.svc.ProvisionCodes(context.Background(), checkout("price_friend")); err == nil {
		t.Fatal("expected an error when every code collides")
	}
	if f.codes.createCalls != codeMintAttempts {
		t.Errorf("create calls = %d, want %d", f.codes.createCalls, codeMintAttempts)
	}
}

func TestEmailFailureDoesNotFailProvisioning(t *testing.T) {
	f := newProvisioningFixture()
	f.mailer.failWithError = errUpstream

	if err := f.svc.ProvisionCodes(context.Background(), checkout("price_friend")); err != nil {
		t.Fatalf("ProvisionCodes: %v", err)
	}
	if len(f.codes.codes) != 2 {
		t.Error("codes must exist even when the email fails")
	}
}

func TestMintBatchBounds(t *testing.T) {
	f := newProvisioningFixture()
	if _, err := f.svc.MintBatch(context.Background(), "admin@example.com", "Friend", 0); err == nil {
		t.Error("count 0 must be rejected")
	}
	if _, err := f.svc.MintBatch(context.Background(), "admin@example.com", "Friend", 101); err == nil {
		t.Error("count 101 must be rejected")
	}
	codes, err := f.svc.MintBatch(context.Background(), "admin@example.com", "Friend", 5)
	if err != nil {
		t.Fatalf("MintBatch: %v", err)
	}
	if len(codes) != 5 {
		t.Errorf("codes = %d, want 5", len(codes))
	}
}

func TestGeneratedCodesAreWellFormed(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateAccessCode()
		if err != nil {
			t.Fatalf("generateAccessCode: %v", err)
		}
		if !mintedCodePattern.MatchString(code) {
			t.Fatalf("code %q does not match ET-XXXX-XXXX", code)
		}
	}
}
