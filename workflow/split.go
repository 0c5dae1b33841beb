package workflow

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/lessons_backend/config"
	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/shopspring/decimal"
)

// SplitPolicy holds the platform-defined percentages of a paid booking.
// The platform fee is not a percentage of its own: it is the residual after
// the payable shares are cut, so every fractional remainder from percentage
// division lands on the PlatformFee entry and the group sums to zero exactly.
type SplitPolicy struct {
	TutorPct    int64
	ReferralPct int64
	AgentPct    int64

	// AllowBoth lets ReferralCommission and AgentCommission co-occur on one
	// booking. When false the agent commission takes precedence.
	AllowBoth bool
}

func DefaultSplitPolicy() SplitPolicy {
	return SplitPolicy{
		TutorPct:    pctFromEnv("SPLIT_TUTOR_PCT", 70),
		ReferralPct: pctFromEnv("SPLIT_REFERRAL_PCT", 10),
		AgentPct:    pctFromEnv("SPLIT_AGENT_PCT", 20),
		AllowBoth:   config.CommissionAllowBoth(),
	}
}

func pctFromEnv(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 || n > 100 {
		return def
	}
	return n
}

// SplitShare is one computed line of a settlement split.
type SplitShare struct {
	Kind   models.TransactionKind
	Amount decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

func shareOf(amount decimal.Decimal, pct int64) decimal.Decimal {
	// Truncate to the minor unit; the platform fee absorbs the remainder.
	return amount.Mul(decimal.NewFromInt(pct)).Div(oneHundred).Truncate(2)
}

// ComputeSplit turns a paid booking amount into signed ledger shares.
// The returned lines always sum to exactly zero, or an InvariantViolation
// is returned and nothing should be committed.
func ComputeSplit(amount decimal.Decimal, hasReferral, hasAgent bool, policy SplitPolicy) ([]SplitShare, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive settlement amount %s", utils.ErrorInvariantViolation, amount)
	}

	tutor := shareOf(amount, policy.TutorPct)

	var agent, referral decimal.Decimal
	if hasAgent {
		agent = shareOf(amount, policy.AgentPct)
	}
	if hasReferral && (!hasAgent || policy.AllowBoth) {
		referral = shareOf(amount, policy.ReferralPct)
	}

	platform := amount.Sub(tutor).Sub(agent).Sub(referral)
	if platform.Sign() < 0 {
		return nil, fmt.Errorf("%w: shares exceed booking amount (tutor=%s agent=%s referral=%s of %s)",
			utils.ErrorInvariantViolation, tutor, agent, referral, amount)
	}

	shares := []SplitShare{
		{Kind: models.TransactionKindClientDebit, Amount: amount.Neg()},
		{Kind: models.TransactionKindTutorPayout, Amount: tutor},
	}
	if referral.Sign() > 0 {
		shares = append(shares, SplitShare{Kind: models.TransactionKindReferralCommission, Amount: referral})
	}
	if agent.Sign() > 0 {
		shares = append(shares, SplitShare{Kind: models.TransactionKindAgentCommission, Amount: agent})
	}
	shares = append(shares, SplitShare{Kind: models.TransactionKindPlatformFee, Amount: platform})

	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Amount)
	}
	if !total.IsZero() {
		return nil, fmt.Errorf("%w: split sums to %s, want 0", utils.ErrorInvariantViolation, total)
	}
	return shares, nil
}

// BuildSettlementEntries materializes the shares into ledger entries, all
// carrying the same context snapshot. Client money is captured already, so
// the debit and the platform fee clear immediately; payable shares start
// Pending and move through the payout lifecycle.
func BuildSettlementEntries(booking *models.Booking, snapshot models.ContextSnapshot, shares []SplitShare, chargeRef string, now time.Time) ([]models.Transaction, error) {
	entries := make([]models.Transaction, 0, len(shares))
	for _, share := range shares {
		var profileId string
		switch share.Kind {
		case models.TransactionKindClientDebit:
			profileId = booking.ClientId
		case models.TransactionKindTutorPayout:
			profileId = booking.TutorId
		case models.TransactionKindReferralCommission:
			if booking.ReferrerId == nil {
				return nil, fmt.Errorf("%w: referral share without referrer", utils.ErrorInvariantViolation)
			}
			profileId = *booking.ReferrerId
		case models.TransactionKindAgentCommission:
			if booking.AgentId == nil {
				return nil, fmt.Errorf("%w: agent share without agent", utils.ErrorInvariantViolation)
			}
			profileId = *booking.AgentId
		case models.TransactionKindPlatformFee:
			profileId = config.PlatformProfileId()
		default:
			return nil, fmt.Errorf("%w: unexpected share kind %s", utils.ErrorInvariantViolation, share.Kind)
		}

		bookingId := booking.ID
		entry := models.Transaction{
			ProfileId: profileId,
			BookingId: &bookingId,
			Kind:      share.Kind,
			Amount:    share.Amount,
			Status:    models.TransactionStatusPending,
			ChargeRef: chargeRef,
			Context:   snapshot,
		}
		if share.Kind == models.TransactionKindClientDebit || share.Kind == models.TransactionKindPlatformFee {
			availableAt := now
			entry.Status = models.TransactionStatusAvailable
			entry.AvailableAt = &availableAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
