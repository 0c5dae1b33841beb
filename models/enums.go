package models

// TransactionKind classifies a ledger entry within a settlement group.
type TransactionKind string

const (
	TransactionKindClientDebit        TransactionKind = "ClientDebit"
	TransactionKindTutorPayout        TransactionKind = "TutorPayout"
	TransactionKindPlatformFee        TransactionKind = "PlatformFee"
	TransactionKindReferralCommission TransactionKind = "ReferralCommission"
	TransactionKindAgentCommission    TransactionKind = "AgentCommission"
	TransactionKindRefund             TransactionKind = "Refund"
)

// TransactionStatus is the payout lifecycle of an entry.
// Pending -> Clearing -> Available, or Failed. Driven by gateway events.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "Pending"
	TransactionStatusClearing  TransactionStatus = "Clearing"
	TransactionStatusAvailable TransactionStatus = "Available"
	TransactionStatusFailed    TransactionStatus = "Failed"
)

type LocationMode string

const (
	LocationModeOnline   LocationMode = "Online"
	LocationModeInPerson LocationMode = "InPerson"
	LocationModeHybrid   LocationMode = "Hybrid"
)

type SessionKind string

const (
	SessionKindPaid     SessionKind = "Paid"
	SessionKindFreeHelp SessionKind = "FreeHelp"
)

// RecalcPriority orders the recalculation queue. Rank() exists because the
// queue is drained high-first and MySQL enum ordering follows declaration
// order, which we do not want to depend on.
type RecalcPriority string

const (
	RecalcPriorityNormal RecalcPriority = "Normal"
	RecalcPriorityHigh   RecalcPriority = "High"
)

func (p RecalcPriority) Rank() int {
	if p == RecalcPriorityHigh {
		return 1
	}
	return 0
}

// MaxRecalcPriority is the merge rule for duplicate enqueues.
func MaxRecalcPriority(a, b RecalcPriority) RecalcPriority {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// Recalculation reason codes.
type RecalcReason string

const (
	RecalcReasonPaymentSettled       RecalcReason = "payment_settled"
	RecalcReasonFreeSessionCompleted RecalcReason = "free_session_completed"
	RecalcReasonPayoutCompensated    RecalcReason = "payout_compensated"
)

// CompensationReason distinguishes the two gateway payout events that feed
// the compensation handler. Both produce an identical Refund shape.
type CompensationReason string

const (
	CompensationReasonFailed   CompensationReason = "failed"
	CompensationReasonCanceled CompensationReason = "canceled"
)
