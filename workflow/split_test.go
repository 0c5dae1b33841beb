package workflow

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/shopspring/decimal"
)

func testPolicy() SplitPolicy {
	return SplitPolicy{TutorPct: 70, ReferralPct: 10, AgentPct: 20}
}

func shareByKind(t *testing.T, shares []SplitShare, kind models.TransactionKind) decimal.Decimal {
	t.Helper()
	for _, s := range shares {
		if s.Kind == kind {
			return s.Amount
		}
	}
	t.Fatalf("no %s share in %v", kind, shares)
	return decimal.Zero
}

func hasKind(shares []SplitShare, kind models.TransactionKind) bool {
	for _, s := range shares {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func sumShares(shares []SplitShare) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Amount)
	}
	return total
}

func TestComputeSplit_PlainBooking(t *testing.T) {
	shares, err := ComputeSplit(decimal.RequireFromString("100.00"), false, false, testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	if got := shareByKind(t, shares, models.TransactionKindClientDebit); !got.Equal(decimal.RequireFromString("-100.00")) {
		t.Errorf("client debit = %s, want -100.00", got)
	}
	if got := shareByKind(t, shares, models.TransactionKindTutorPayout); !got.Equal(decimal.RequireFromString("70.00")) {
		t.Errorf("tutor payout = %s, want 70.00", got)
	}
	if got := shareByKind(t, shares, models.TransactionKindPlatformFee); !got.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("platform fee = %s, want 30.00", got)
	}
	if hasKind(shares, models.TransactionKindAgentCommission) || hasKind(shares, models.TransactionKindReferralCommission) {
		t.Error("plain booking must not produce commission shares")
	}
	if !sumShares(shares).IsZero() {
		t.Errorf("shares sum to %s, want 0", sumShares(shares))
	}
}

func TestComputeSplit_WithAgent(t *testing.T) {
	shares, err := ComputeSplit(decimal.RequireFromString("100.00"), false, true, testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	if got := shareByKind(t, shares, models.TransactionKindTutorPayout); !got.Equal(decimal.RequireFromString("70.00")) {
		t.Errorf("tutor payout = %s, want 70.00", got)
	}
	if got := shareByKind(t, shares, models.TransactionKindAgentCommission); !got.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("agent commission = %s, want 20.00", got)
	}
	if got := shareByKind(t, shares, models.TransactionKindPlatformFee); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("platform fee = %s, want 10.00", got)
	}
	if !sumShares(shares).IsZero() {
		t.Errorf("shares sum to %s, want 0", sumShares(shares))
	}
}

func TestComputeSplit_AgentTakesPrecedenceOverReferral(t *testing.T) {
	shares, err := ComputeSplit(decimal.RequireFromString("100.00"), true, true, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if hasKind(shares, models.TransactionKindReferralCommission) {
		t.Error("referral commission cut despite agent precedence")
	}
	if !hasKind(shares, models.TransactionKindAgentCommission) {
		t.Error("agent commission missing")
	}
}

func TestComputeSplit_BothCommissionsWhenPolicyAllows(t *testing.T) {
	policy := testPolicy()
	policy.AllowBoth = true

	shares, err := ComputeSplit(decimal.RequireFromString("100.00"), true, true, policy)
	if err != nil {
		t.Fatal(err)
	}
	if got := shareByKind(t, shares, models.TransactionKindReferralCommission); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("referral commission = %s, want 10.00", got)
	}
	if got := shareByKind(t, shares, models.TransactionKindAgentCommission); !got.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("agent commission = %s, want 20.00", got)
	}
	if got := shareByKind(t, shares, models.TransactionKindPlatformFee); !got.IsZero() {
		t.Errorf("platform fee = %s, want 0", got)
	}
	if !sumShares(shares).IsZero() {
		t.Errorf("shares sum to %s, want 0", sumShares(shares))
	}
}

func TestComputeSplit_RemainderLandsOnPlatformFee(t *testing.T) {
	// 99.99 * 70% = 69.993, truncated to 69.99; the .003 stays with the platform.
	shares, err := ComputeSplit(decimal.RequireFromString("99.99"), false, false, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if got := shareByKind(t, shares, models.TransactionKindTutorPayout); !got.Equal(decimal.RequireFromString("69.99")) {
		t.Errorf("tutor payout = %s, want 69.99", got)
	}
	if got := shareByKind(t, shares, models.TransactionKindPlatformFee); !got.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("platform fee = %s, want 30.00", got)
	}
	if !sumShares(shares).IsZero() {
		t.Errorf("shares sum to %s, want 0", sumShares(shares))
	}
}

func TestComputeSplit_ZeroSumProperty(t *testing.T) {
	amounts := []string{"0.01", "0.03", "1.00", "12.34", "33.33", "99.99", "100.00", "123.45", "9999.97"}
	for _, raw := range amounts {
		for _, hasReferral := range []bool{false, true} {
			for _, hasAgent := range []bool{false, true} {
				for _, allowBoth := range []bool{false, true} {
					policy := testPolicy()
					policy.AllowBoth = allowBoth
					shares, err := ComputeSplit(decimal.RequireFromString(raw), hasReferral, hasAgent, policy)
					if err != nil {
						t.Fatalf("amount=%s referral=%v agent=%v: %v", raw, hasReferral, hasAgent, err)
					}
					if !sumShares(shares).IsZero() {
						t.Errorf("amount=%s referral=%v agent=%v allowBoth=%v: sum=%s, want 0",
							raw, hasReferral, hasAgent, allowBoth, sumShares(shares))
					}
				}
			}
		}
	}
}

func TestComputeSplit_RejectsNonPositiveAmount(t *testing.T) {
	for _, raw := range []string{"0", "-1.00"} {
		_, err := ComputeSplit(decimal.RequireFromString(raw), false, false, testPolicy())
		if !errors.Is(err, utils.ErrorInvariantViolation) {
			t.Errorf("amount=%s: err=%v, want invariant violation", raw, err)
		}
	}
}

func TestComputeSplit_RejectsOversubscribedPolicy(t *testing.T) {
	policy := SplitPolicy{TutorPct: 80, AgentPct: 30, ReferralPct: 10}
	_, err := ComputeSplit(decimal.RequireFromString("100.00"), false, true, policy)
	if !errors.Is(err, utils.ErrorInvariantViolation) {
		t.Errorf("err=%v, want invariant violation when shares exceed amount", err)
	}
}
