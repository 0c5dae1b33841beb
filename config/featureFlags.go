package config

import (
	"os"
	"strings"
)

// CommissionAllowBoth controls whether a booking carrying both a referral and
// an agent association produces both commission entries. When false (default)
// the agent commission takes precedence and no referral commission is cut.
//
// Set via env:
// - COMMISSION_ALLOW_BOTH=true
func CommissionAllowBoth() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("COMMISSION_ALLOW_BOTH")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// FreeSessionLimitScope selects how the rolling 7-day free-session cap is
// counted: "client" (default) caps a client across all tutors, "pair" caps
// each (client, tutor) pair independently.
//
// Set via env:
// - FREE_SESSION_LIMIT_SCOPE=pair
func FreeSessionLimitScope() string {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("FREE_SESSION_LIMIT_SCOPE")), "pair") {
		return "pair"
	}
	return "client"
}

// PlatformProfileId is the ledger owner of PlatformFee entries.
func PlatformProfileId() string {
	if v := strings.TrimSpace(os.Getenv("PLATFORM_PROFILE_ID")); v != "" {
		return v
	}
	return "platform"
}

// RecalcNotifyEnabled gates the outbound Pub/Sub notification published after
// a recalculation enqueue commits. The queue row is the durable record; the
// notification is a latency optimization for the scoring consumer.
//
// Set via env:
// - RECALC_NOTIFY=true
func RecalcNotifyEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("RECALC_NOTIFY")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
