package service

import (
	"context"
	"errors"
	"testing"

	"github.com/afelu/guardian/internal/models"
)

func newRedemptionFixture() (*RedemptionService, *fakeUserStore, *fakeCodeStore, *fakeLimiter) {
	users := newFakeUserStore()
	codes := newFakeCodeStore(users)
	limiter := newFakeLimiter()
	svc := NewRedemptionService(codes, users, limiter, &fakeUsageLog{}, 500, 100, testLogger())
	return svc, users, codes, limiter
}

func TestRedeemGrantsQuotaAndMarksCodeUsed(t *testing.T) {
	svc, _, codes, _ := newRedemptionFixture()
	codes.addCode("ET-AB12-CD34", models.CodeStatusNew)

	user, created, err := svc.Redeem(context.Background(), 1001, "et-ab12-cd34")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !created {
		t.Error("expected a new user to be created")
	}
	if user.QuotaGPT != 500 || user.QuotaFetch != 100 {
		t.Errorf("quota = %d/%d, want 500/100", user.QuotaGPT, user.QuotaFetch)
	}

	ac, _ := codes.FindByCode(context.Background(), "ET-AB12-CD34")
	if ac.Status != models.CodeStatusUsed {
		t.Errorf("code status = %s, want USED", ac.Status)
	}
	if ac.UsedAt == nil || ac.RedeemedBy == nil {
		t.Error("used_at and redeemed_by should be set")
	}
}

func TestRedeemUsedCodeRejected(t *testing.T) {
	svc, users, codes, _ := newRedemptionFixture()
	codes.addCode("ET-AB12-CD34", models.CodeStatusUsed)
	users.addUser(1001, 10, 10)

	_, _, err := svc.Redeem(context.Background(), 1001, "ET-AB12-CD34")
	if !errors.Is(err, ErrCodeUsed) {
		t.Fatalf("err = %v, want ErrCodeUsed", err)
	}
	if gpt, fetch := users.quota(1001); gpt != 10 || fetch != 10 {
		t.Errorf("quota changed on failed redeem: %d/%d", gpt, fetch)
	}
}

func TestRedeemInvalidFormat(t *testing.T) {
	svc, _, _, limiter := newRedemptionFixture()

	cases := []string{"", "ET-ABCD", "XX-AB12-CD34", "ET-AB12-CD3", "ET-ab!2-CD34", "random text"}
	for _, raw := range cases {
		if _, _, err := svc.Redeem(context.Background(), 1001, raw); !errors.Is(err, ErrCodeInvalid) {
			t.Errorf("Redeem(%q) err = %v, want ErrCodeInvalid", raw, err)
		}
	}
	// Format failures must not consume rate limit attempts.
	if len(limiter.counts) != 0 {
		t.Errorf("limiter consulted for malformed codes: %v", limiter.counts)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	svc, _, _, _ := newRedemptionFixture()
	if _, _, err := svc.Redeem(context.Background(), 1001, "ET-ZZZZ-0000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("err = %v, want ErrCodeInvalid", err)
	}
}

func TestRedeemRateLimited(t *testing.T) {
	svc, _, codes, _ := newRedemptionFixture()
	codes.addCode("ET-AB12-CD34", models.CodeStatusNew)

	// Three well-formed attempts are allowed per window; the fourth is not.
	for i := 0; i < 3; i++ {
		svc.Redeem(context.Background(), 1001, "ET-ZZZZ-0000")
	}
	_, _, err := svc.Redeem(context.Background(), 1001, "ET-AB12-CD34")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	ac, _ := codes.FindByCode(context.Background(), "ET-AB12-CD34")
	if ac.Status != models.CodeStatusNew {
		t.Error("code must stay NEW when the attempt is rate limited")
	}
}

func TestRedeemTopsUpExistingUser(t *testing.T) {
	svc, users, codes, _ := newRedemptionFixture()
	users.addUser(1001, 3, 1)
	codes.addCode("ET-AB12-CD34", models.CodeStatusNew)

	user, created, err := svc.Redeem(context.Background(), 1001, "ET-AB12-CD34")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if created {
		t.Error("existing user should not be reported as created")
	}
	if user.QuotaGPT != 503 || user.QuotaFetch != 101 {
		t.Errorf("quota = %d/%d, want 503/101", user.QuotaGPT, user.QuotaFetch)
	}
}
