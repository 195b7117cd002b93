package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// AnonymousStore is the datastore surface the gate and ledger need for
// free-tier counters.
type AnonymousStore interface {
	Get(ctx context.Context, sessionID, ip string) (*domain.AnonymousUsage, error)
	Increment(ctx context.Context, sessionID, ip string) (int, error)
}

// CreditStore is the datastore surface for authenticated balances.
type CreditStore interface {
	GetOrCreate(ctx context.Context, userID string, startingGrant int) (*domain.CreditBalance, error)
	DeductOne(ctx context.Context, userID string) (int, error)
	AddCredits(ctx context.Context, userID string, amount int) (int, error)
}

// Decision is the outcome of a pre-flight gate check.
type Decision struct {
	Allowed      bool
	Remaining    int // credits or free generations left; -1 when unknown
	Required     int // credits required for the selected provider
	Used         int // anonymous requests consumed so far
	Limit        int // anonymous quota
	RequiresAuth bool
}

// DenialError carries a gate denial together with the numbers callers
// surface in their remediation payloads. Unwraps to the matching
// domain sentinel.
type DenialError struct {
	Reason   error
	Decision Decision
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("usage gate: %v", e.Reason)
}

func (e *DenialError) Unwrap() error { return e.Reason }

// Gate performs the pre-flight usage check. Denials are expected
// control flow, not bugs; the gate itself never mutates usage state.
type Gate struct {
	anon          AnonymousStore
	credits       CreditStore
	quota         int
	startingGrant int
	logger        zerolog.Logger
}

// NewGate wires a gate over the two usage stores.
func NewGate(anon AnonymousStore, credits CreditStore, quota, startingGrant int, logger zerolog.Logger) *Gate {
	return &Gate{anon: anon, credits: credits, quota: quota, startingGrant: startingGrant, logger: logger}
}

// Check decides whether the caller may run a generation costing the
// given number of credits. Datastore reads that cannot complete are
// treated as zero usage: an infrastructure blip must not block all
// traffic (availability over strictness).
func (g *Gate) Check(ctx context.Context, caller domain.Caller, cost int) (Decision, error) {
	if caller.Authenticated() {
		return g.checkCredits(ctx, caller.UserID, cost)
	}
	return g.checkQuota(ctx, caller)
}

func (g *Gate) checkCredits(ctx context.Context, userID string, cost int) (Decision, error) {
	balance, err := g.credits.GetOrCreate(ctx, userID, g.startingGrant)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("gate: credit read failed, failing open")
		return Decision{Allowed: true, Remaining: -1, Required: cost}, nil
	}
	if balance.Balance < cost {
		d := Decision{Remaining: balance.Balance, Required: cost}
		return d, &DenialError{Reason: domain.ErrInsufficientCredits, Decision: d}
	}
	return Decision{Allowed: true, Remaining: balance.Balance, Required: cost}, nil
}

func (g *Gate) checkQuota(ctx context.Context, caller domain.Caller) (Decision, error) {
	if caller.SessionID == "" {
		d := Decision{Limit: g.quota}
		return d, &DenialError{Reason: domain.ErrSessionRequired, Decision: d}
	}
	used := 0
	record, err := g.anon.Get(ctx, caller.SessionID, caller.IP)
	switch {
	case err == nil:
		used = record.Count
	case errors.Is(err, domain.ErrNotFound):
		// first use, counter is created lazily on commit
	default:
		g.logger.Warn().Err(err).Str("session_id", caller.SessionID).Msg("gate: quota read failed, failing open")
	}
	if used >= g.quota {
		d := Decision{Used: used, Limit: g.quota, RequiresAuth: true}
		return d, &DenialError{Reason: domain.ErrQuotaExceeded, Decision: d}
	}
	return Decision{Allowed: true, Remaining: g.quota - used, Used: used, Limit: g.quota}, nil
}
