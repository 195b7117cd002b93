package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
	"github.com/rcwells1879/veilpix-sub000/internal/imagegen"
	"github.com/rcwells1879/veilpix-sub000/internal/infra"
	"github.com/rcwells1879/veilpix-sub000/internal/middleware"
	"github.com/rcwells1879/veilpix-sub000/internal/usage"
)

// App is the handler container: every dependency is injected once at
// startup and shared across requests.
type App struct {
	Orchestrator *imagegen.Orchestrator
	Gate         *usage.Gate
	Ledger       *usage.Ledger
	Credits      usage.CreditStore
	Config       *infra.Config
	Logger       zerolog.Logger
}

// NewApp builds the handler container.
func NewApp(orc *imagegen.Orchestrator, gate *usage.Gate, ledger *usage.Ledger, credits usage.CreditStore, cfg *infra.Config, logger zerolog.Logger) *App {
	return &App{Orchestrator: orc, Gate: gate, Ledger: ledger, Credits: credits, Config: cfg, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": errCode, "message": message})
}

// callerFromRequest assembles the caller identity resolved by the
// identity middleware.
func (a *App) callerFromRequest(r *http.Request) domain.Caller {
	ctx := r.Context()
	return domain.Caller{
		UserID:    middleware.UserIDFromContext(ctx),
		SessionID: middleware.SessionIDFromContext(ctx),
		IP:        middleware.ClientIPFromContext(ctx),
		Country:   middleware.CountryFromContext(ctx),
	}
}

// writeGenerationError translates the orchestrator's error taxonomy
// into the HTTP contract. Gate denials carry remediation payloads;
// everything else is a generic failure with detail gated to development.
func (a *App) writeGenerationError(w http.ResponseWriter, err error) {
	var denial *usage.DenialError
	if errors.As(err, &denial) {
		switch {
		case errors.Is(err, domain.ErrSessionRequired):
			a.error(w, http.StatusBadRequest, "session_required", "a session id is required; retry with an X-Session-Id header")
		case errors.Is(err, domain.ErrQuotaExceeded):
			a.json(w, http.StatusTooManyRequests, map[string]any{
				"error":        "quota_exceeded",
				"message":      "free generation limit reached; sign in to continue",
				"limit":        denial.Decision.Limit,
				"used":         denial.Decision.Used,
				"requiresAuth": true,
			})
		case errors.Is(err, domain.ErrInsufficientCredits):
			a.json(w, http.StatusPaymentRequired, map[string]any{
				"error":            "insufficient_credits",
				"message":          "not enough credits; purchase more to continue",
				"creditsRemaining": denial.Decision.Remaining,
				"creditsRequired":  denial.Decision.Required,
			})
		default:
			a.error(w, http.StatusForbidden, "denied", "request denied")
		}
		return
	}

	if errors.Is(err, domain.ErrInvalidIntent) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid generation request")
		return
	}

	payload := map[string]any{
		"error":   "generation_failed",
		"message": "failed to generate image",
	}
	if a.Config.IsDevelopment() {
		payload["details"] = err.Error()
		payload["stage"] = domain.StageOf(err)
	}
	a.json(w, http.StatusInternalServerError, payload)
}
