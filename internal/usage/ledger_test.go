package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

type fakeEventStore struct {
	events []domain.UsageEvent
	err    error
}

func (f *fakeEventStore) Insert(ctx context.Context, ev domain.UsageEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestLedger(anon *fakeAnonStore, credits *fakeCreditStore, events *fakeEventStore) *Ledger {
	return NewLedger(anon, credits, events, 20, zerolog.Nop())
}

func TestLedgerCommitAnonymous(t *testing.T) {
	anon := &fakeAnonStore{record: &domain.AnonymousUsage{SessionID: "s1", Count: 4}}
	events := &fakeEventStore{}
	ledger := newTestLedger(anon, &fakeCreditStore{}, events)

	remaining, err := ledger.Commit(context.Background(), domain.Caller{SessionID: "s1", IP: "1.2.3.4"},
		"gemini", domain.KindEdit, 1, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if anon.increments != 1 {
		t.Fatalf("increments = %d, want exactly 1", anon.increments)
	}
	if remaining != 15 {
		t.Fatalf("remaining = %d, want 15", remaining)
	}
	if len(events.events) != 1 || !events.events[0].Success {
		t.Fatalf("expected one success event, got %+v", events.events)
	}
}

func TestLedgerCommitDeductsPerCredit(t *testing.T) {
	credits := &fakeCreditStore{balance: 5}
	events := &fakeEventStore{}
	ledger := newTestLedger(&fakeAnonStore{}, credits, events)

	remaining, err := ledger.Commit(context.Background(), domain.Caller{UserID: "u1"},
		"seedream", domain.KindCombine, 2, time.Second)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if credits.deductions != 2 {
		t.Fatalf("deductions = %d, want 2", credits.deductions)
	}
	if remaining != 3 {
		t.Fatalf("remaining = %d, want 3", remaining)
	}
}

func TestLedgerCommitPartialDeductionUnderCharges(t *testing.T) {
	// Balance 2, cost 2, second deduction blows up: the user keeps the
	// image, loses one credit, never two.
	credits := &fakeCreditStore{balance: 2}
	events := &fakeEventStore{}

	calls := 0
	wrapped := &flakyCreditStore{inner: credits, failAfter: 1, calls: &calls}
	flaky := NewLedger(&fakeAnonStore{}, wrapped, events, 20, zerolog.Nop())

	remaining, err := flaky.Commit(context.Background(), domain.Caller{UserID: "u1"},
		"seedream", domain.KindEdit, 2, time.Second)
	if !errors.Is(err, domain.ErrLedger) {
		t.Fatalf("err = %v, want ledger error", err)
	}
	if credits.balance != 1 {
		t.Fatalf("balance = %d, want 1 (one deduction applied, one lost)", credits.balance)
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d, want the balance after the last good deduction", remaining)
	}
}

func TestLedgerCommitWritesEventBeforeDeduction(t *testing.T) {
	credits := &fakeCreditStore{balance: 0, deductErr: nil}
	events := &fakeEventStore{}
	ledger := newTestLedger(&fakeAnonStore{}, credits, events)

	_, err := ledger.Commit(context.Background(), domain.Caller{UserID: "u1"},
		"gemini", domain.KindEdit, 1, time.Second)
	if !errors.Is(err, domain.ErrLedger) {
		t.Fatalf("err = %v, want ledger error", err)
	}
	if len(events.events) != 1 {
		t.Fatalf("the usage event must be written even when the deduction fails, got %d events", len(events.events))
	}
}

func TestLedgerRecordFailureMutatesNothing(t *testing.T) {
	anon := &fakeAnonStore{record: &domain.AnonymousUsage{SessionID: "s1", Count: 4}}
	credits := &fakeCreditStore{balance: 5}
	events := &fakeEventStore{}
	ledger := newTestLedger(anon, credits, events)

	ledger.RecordFailure(context.Background(), domain.Caller{UserID: "u1"},
		"qwen", domain.KindAdjust, domain.StageExecute, time.Second)

	if anon.increments != 0 || credits.deductions != 0 {
		t.Fatalf("failure recording mutated usage state: %d increments, %d deductions",
			anon.increments, credits.deductions)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one failure event, got %d", len(events.events))
	}
	ev := events.events[0]
	if ev.Success || ev.FailStage != domain.StageExecute {
		t.Fatalf("event = %+v, want failure tagged with its stage", ev)
	}
}

func TestLedgerAddCreditsRejectsNonPositive(t *testing.T) {
	ledger := newTestLedger(&fakeAnonStore{}, &fakeCreditStore{}, &fakeEventStore{})

	if _, err := ledger.AddCredits(context.Background(), "u1", 0); !errors.Is(err, domain.ErrLedger) {
		t.Fatalf("err = %v, want ledger error for zero top-up", err)
	}
	if _, err := ledger.AddCredits(context.Background(), "u1", -5); !errors.Is(err, domain.ErrLedger) {
		t.Fatalf("err = %v, want ledger error for negative top-up", err)
	}
}

func TestLedgerAddCredits(t *testing.T) {
	credits := &fakeCreditStore{balance: 3}
	ledger := newTestLedger(&fakeAnonStore{}, credits, &fakeEventStore{})

	balance, err := ledger.AddCredits(context.Background(), "u1", 100)
	if err != nil {
		t.Fatalf("top-up failed: %v", err)
	}
	if balance != 103 {
		t.Fatalf("balance = %d, want 103", balance)
	}
}

// flakyCreditStore lets the first failAfter deductions through, then
// returns an error for the rest.
type flakyCreditStore struct {
	inner     *fakeCreditStore
	failAfter int
	calls     *int
}

func (f *flakyCreditStore) GetOrCreate(ctx context.Context, userID string, startingGrant int) (*domain.CreditBalance, error) {
	return f.inner.GetOrCreate(ctx, userID, startingGrant)
}

func (f *flakyCreditStore) DeductOne(ctx context.Context, userID string) (int, error) {
	*f.calls++
	if *f.calls > f.failAfter {
		return 0, errors.New("connection reset")
	}
	return f.inner.DeductOne(ctx, userID)
}

func (f *flakyCreditStore) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	return f.inner.AddCredits(ctx, userID, amount)
}
