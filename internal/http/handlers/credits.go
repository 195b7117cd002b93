package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type topupRequest struct {
	UserID  string `json:"userId"`
	Credits int    `json:"credits"`
	Event   string `json:"event"`
}

// CreditsBalance returns the authenticated user's credit balance,
// creating the account with its starting grant on first sight.
func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	caller := a.callerFromRequest(r)
	if !caller.Authenticated() {
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	balance, err := a.Credits.GetOrCreate(r.Context(), caller.UserID, a.Config.StartingCredits)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", caller.UserID).Msg("credits: balance read failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"balance":        balance.Balance,
		"totalPurchased": balance.TotalPurchased,
	})
}

// CreditsTopup is the payment-processor webhook. It is guarded by a
// shared secret rather than a user token because the caller is a
// machine, not the user whose balance changes.
func (a *App) CreditsTopup(w http.ResponseWriter, r *http.Request) {
	secret := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if a.Config.TopupSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(a.Config.TopupSecret)) != 1 {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid webhook credentials")
		return
	}

	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.UserID == "" || req.Credits <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "userId and a positive credits amount are required")
		return
	}

	balance, err := a.Ledger.AddCredits(r.Context(), req.UserID, req.Credits)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Int("credits", req.Credits).Msg("credits: top-up failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "failed to apply top-up")
		return
	}

	a.Logger.Info().Str("user_id", req.UserID).Int("credits", req.Credits).Int("balance", balance).Msg("credits: top-up applied")
	a.json(w, http.StatusOK, map[string]any{"success": true, "balance": balance})
}
