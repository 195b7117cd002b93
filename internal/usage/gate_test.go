package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

type fakeAnonStore struct {
	record     *domain.AnonymousUsage
	getErr     error
	increments int
	incErr     error
}

func (f *fakeAnonStore) Get(ctx context.Context, sessionID, ip string) (*domain.AnonymousUsage, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.record, nil
}

func (f *fakeAnonStore) Increment(ctx context.Context, sessionID, ip string) (int, error) {
	if f.incErr != nil {
		return 0, f.incErr
	}
	f.increments++
	if f.record == nil {
		f.record = &domain.AnonymousUsage{SessionID: sessionID, IP: ip}
	}
	f.record.Count++
	return f.record.Count, nil
}

type fakeCreditStore struct {
	balance    int
	getErr     error
	deductErr  error
	deductions int
	added      int
}

func (f *fakeCreditStore) GetOrCreate(ctx context.Context, userID string, startingGrant int) (*domain.CreditBalance, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.CreditBalance{UserID: userID, Balance: f.balance}, nil
}

func (f *fakeCreditStore) DeductOne(ctx context.Context, userID string) (int, error) {
	if f.deductErr != nil {
		return 0, f.deductErr
	}
	if f.balance < 1 {
		return 0, domain.ErrInsufficientCredits
	}
	f.balance--
	f.deductions++
	return f.balance, nil
}

func (f *fakeCreditStore) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	f.balance += amount
	f.added += amount
	return f.balance, nil
}

func newTestGate(anon *fakeAnonStore, credits *fakeCreditStore) *Gate {
	return NewGate(anon, credits, 20, 30, zerolog.Nop())
}

func TestGateAnonymousRequiresSession(t *testing.T) {
	gate := newTestGate(&fakeAnonStore{}, &fakeCreditStore{})

	_, err := gate.Check(context.Background(), domain.Caller{IP: "1.2.3.4"}, 1)
	if !errors.Is(err, domain.ErrSessionRequired) {
		t.Fatalf("err = %v, want session required", err)
	}
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected a denial error, got %T", err)
	}
}

func TestGateAnonymousUnderQuota(t *testing.T) {
	anon := &fakeAnonStore{record: &domain.AnonymousUsage{SessionID: "s1", Count: 19}}
	gate := newTestGate(anon, &fakeCreditStore{})

	d, err := gate.Check(context.Background(), domain.Caller{SessionID: "s1", IP: "1.2.3.4"}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected the 20th request to pass")
	}
	if d.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1", d.Remaining)
	}
}

func TestGateAnonymousAtQuota(t *testing.T) {
	anon := &fakeAnonStore{record: &domain.AnonymousUsage{SessionID: "s1", Count: 20}}
	gate := newTestGate(anon, &fakeCreditStore{})

	_, err := gate.Check(context.Background(), domain.Caller{SessionID: "s1", IP: "1.2.3.4"}, 1)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want quota exceeded", err)
	}
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected a denial error, got %T", err)
	}
	if denial.Decision.Used != 20 || denial.Decision.Limit != 20 {
		t.Fatalf("decision = %+v, want used=20 limit=20", denial.Decision)
	}
	if !denial.Decision.RequiresAuth {
		t.Fatalf("quota denial should direct the caller to sign in")
	}
	if anon.increments != 0 {
		t.Fatalf("gate check must not mutate counters, got %d increments", anon.increments)
	}
}

func TestGateAnonymousFirstUse(t *testing.T) {
	anon := &fakeAnonStore{getErr: domain.ErrNotFound}
	gate := newTestGate(anon, &fakeCreditStore{})

	d, err := gate.Check(context.Background(), domain.Caller{SessionID: "fresh", IP: "1.2.3.4"}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Used != 0 {
		t.Fatalf("decision = %+v, want allowed with zero usage", d)
	}
}

func TestGateAnonymousFailsOpenOnReadError(t *testing.T) {
	anon := &fakeAnonStore{getErr: errors.New("connection refused")}
	gate := newTestGate(anon, &fakeCreditStore{})

	d, err := gate.Check(context.Background(), domain.Caller{SessionID: "s1", IP: "1.2.3.4"}, 1)
	if err != nil {
		t.Fatalf("a datastore blip must not deny traffic: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected fail-open decision, got %+v", d)
	}
}

func TestGateCreditsExactBalance(t *testing.T) {
	credits := &fakeCreditStore{balance: 2}
	gate := newTestGate(&fakeAnonStore{}, credits)

	d, err := gate.Check(context.Background(), domain.Caller{UserID: "u1"}, 2)
	if err != nil {
		t.Fatalf("balance == cost must pass: %v", err)
	}
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("decision = %+v, want allowed remaining=2", d)
	}
}

func TestGateCreditsInsufficient(t *testing.T) {
	credits := &fakeCreditStore{balance: 1}
	gate := newTestGate(&fakeAnonStore{}, credits)

	_, err := gate.Check(context.Background(), domain.Caller{UserID: "u1"}, 2)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want insufficient credits", err)
	}
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected a denial error, got %T", err)
	}
	if denial.Decision.Remaining != 1 || denial.Decision.Required != 2 {
		t.Fatalf("decision = %+v, want remaining=1 required=2", denial.Decision)
	}
	if credits.deductions != 0 {
		t.Fatalf("gate check must not deduct, got %d deductions", credits.deductions)
	}
}

func TestGateCreditsFailsOpenOnReadError(t *testing.T) {
	credits := &fakeCreditStore{getErr: errors.New("connection refused")}
	gate := newTestGate(&fakeAnonStore{}, credits)

	d, err := gate.Check(context.Background(), domain.Caller{UserID: "u1"}, 1)
	if err != nil {
		t.Fatalf("a datastore blip must not deny traffic: %v", err)
	}
	if !d.Allowed || d.Remaining != -1 {
		t.Fatalf("decision = %+v, want allowed with unknown remaining", d)
	}
}

func TestGateCheckIsIdempotent(t *testing.T) {
	anon := &fakeAnonStore{record: &domain.AnonymousUsage{SessionID: "s1", Count: 5}}
	gate := newTestGate(anon, &fakeCreditStore{})
	caller := domain.Caller{SessionID: "s1", IP: "1.2.3.4"}

	for i := 0; i < 3; i++ {
		d, err := gate.Check(context.Background(), caller, 1)
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if d.Used != 5 {
			t.Fatalf("check %d saw used=%d, want 5", i, d.Used)
		}
	}
	if anon.increments != 0 {
		t.Fatalf("repeated checks mutated the counter %d times", anon.increments)
	}
}
