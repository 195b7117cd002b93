package handlers

import (
	"errors"
	"net/http"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
	"github.com/rcwells1879/veilpix-sub000/internal/usage"
)

// UsageStatus reports the caller's current standing without consuming
// anything. A denied caller still gets a 200 with the numbers; only a
// missing session is an error.
func (a *App) UsageStatus(w http.ResponseWriter, r *http.Request) {
	caller := a.callerFromRequest(r)

	decision, err := a.Gate.Check(r.Context(), caller, 1)
	if err != nil {
		var denial *usage.DenialError
		if errors.As(err, &denial) {
			if errors.Is(err, domain.ErrSessionRequired) {
				a.error(w, http.StatusBadRequest, "session_required", "a session id is required; retry with an X-Session-Id header")
				return
			}
			decision = denial.Decision
		} else {
			a.Logger.Error().Err(err).Msg("usage: status check failed")
			a.error(w, http.StatusInternalServerError, "internal_error", "failed to load usage")
			return
		}
	}

	if caller.Authenticated() {
		a.json(w, http.StatusOK, map[string]any{
			"authenticated":    true,
			"creditsRemaining": decision.Remaining,
		})
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"authenticated": false,
		"limit":         decision.Limit,
		"used":          decision.Used,
		"remaining":     decision.Limit - decision.Used,
		"requiresAuth":  decision.RequiresAuth,
	})
}
