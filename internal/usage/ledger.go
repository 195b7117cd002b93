package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// EventStore appends immutable usage-log entries.
type EventStore interface {
	Insert(ctx context.Context, ev domain.UsageEvent) error
}

// Ledger performs post-flight accounting. Exactly one usage mutation
// happens per successful generation: an anonymous counter increment, or
// N single-credit deductions for an N-cost provider. Failed generations
// only produce a log entry and never touch counters or balances.
type Ledger struct {
	anon    AnonymousStore
	credits CreditStore
	events  EventStore
	quota   int
	logger  zerolog.Logger
}

// NewLedger wires a ledger over the usage stores.
func NewLedger(anon AnonymousStore, credits CreditStore, events EventStore, quota int, logger zerolog.Logger) *Ledger {
	return &Ledger{anon: anon, credits: credits, events: events, quota: quota, logger: logger}
}

// Commit records a successful generation. The usage event is written
// before any deduction so billing and operational logs cannot silently
// disagree, even when the deduction itself fails.
//
// Multi-credit costs are deducted as sequential single-credit
// conditional updates. When a later deduction fails after an earlier
// one succeeded the user ends up under-charged, never over-charged.
// Returns the remaining balance or quota, -1 when unknown.
func (l *Ledger) Commit(ctx context.Context, caller domain.Caller, provider string, kind domain.Kind, cost int, latency time.Duration) (int, error) {
	l.logEvent(ctx, caller, provider, kind, true, "", latency)

	if !caller.Authenticated() {
		count, err := l.anon.Increment(ctx, caller.SessionID, caller.IP)
		if err != nil {
			return -1, fmt.Errorf("%w: increment counter: %v", domain.ErrLedger, err)
		}
		remaining := l.quota - count
		if remaining < 0 {
			remaining = 0
		}
		return remaining, nil
	}

	remaining := -1
	for i := 0; i < cost; i++ {
		balance, err := l.credits.DeductOne(ctx, caller.UserID)
		if err != nil {
			return remaining, fmt.Errorf("%w: deducted %d of %d credits: %v", domain.ErrLedger, i, cost, err)
		}
		remaining = balance
	}
	return remaining, nil
}

// RecordFailure writes the usage-log entry for a failed generation.
// No counter or balance is mutated.
func (l *Ledger) RecordFailure(ctx context.Context, caller domain.Caller, provider string, kind domain.Kind, stage string, latency time.Duration) {
	l.logEvent(ctx, caller, provider, kind, false, stage, latency)
}

// AddCredits applies a payment-processor top-up to the user's balance
// and returns the new balance.
func (l *Ledger) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: top-up amount must be positive", domain.ErrLedger)
	}
	balance, err := l.credits.AddCredits(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("%w: add credits: %v", domain.ErrLedger, err)
	}
	return balance, nil
}

func (l *Ledger) logEvent(ctx context.Context, caller domain.Caller, provider string, kind domain.Kind, success bool, stage string, latency time.Duration) {
	ev := domain.UsageEvent{
		UserID:    caller.UserID,
		SessionID: caller.SessionID,
		Provider:  provider,
		Kind:      kind,
		Success:   success,
		LatencyMS: latency.Milliseconds(),
		Country:   caller.Country,
		FailStage: stage,
	}
	if err := l.events.Insert(ctx, ev); err != nil {
		// The event log must never silently disagree with billing.
		l.logger.Error().Err(err).
			Str("provider", provider).
			Str("kind", string(kind)).
			Bool("success", success).
			Msg("ledger: usage event write failed")
	}
}
