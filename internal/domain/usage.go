package domain

import "time"

// Caller identifies who is asking for a generation. Authenticated
// callers carry a stable user id; anonymous callers are keyed by
// session id plus client IP.
type Caller struct {
	UserID    string
	SessionID string
	IP        string
	Country   string
}

// Authenticated reports whether the caller has a verified identity.
func (c Caller) Authenticated() bool { return c.UserID != "" }

// AnonymousUsage is the per-session free-tier counter.
type AnonymousUsage struct {
	SessionID string
	IP        string
	Count     int
	CreatedAt time.Time
}

// CreditBalance is the authenticated caller's accounting record.
type CreditBalance struct {
	UserID         string
	Balance        int
	TotalPurchased int
	LastPurchaseAt *time.Time
	CreatedAt      time.Time
}

// UsageEvent is an immutable log entry written for every generation
// attempt, successful or not, before any credit mutation.
type UsageEvent struct {
	ID         string
	UserID     string
	SessionID  string
	Provider   string
	Kind       Kind
	Success    bool
	LatencyMS  int64
	Country    string
	FailStage  string
	RecordedAt time.Time
}
