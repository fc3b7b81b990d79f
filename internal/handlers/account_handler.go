package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/middleware"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

type AccountHandler struct {
	Store  store.Store
	Ledger *ledger.Service
	Logger *slog.Logger
}

// publicProfile leaves out contact details.
type publicProfile struct {
	Handle       string  `json:"handle"`
	Name         string  `json:"name"`
	BalanceCents int64   `json:"balance_cents"`
	XP           int     `json:"xp"`
	Rating       float64 `json:"rating"`
	RatingCount  int     `json:"rating_count"`
}

// GetUser handles GET /users/{handle}.
func (h *AccountHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimSpace(r.PathValue("handle"))
	var acc *models.Account
	err := h.Store.InTx(r.Context(), func(tx store.Tx) error {
		var err error
		acc, err = tx.Accounts().Get(r.Context(), handle)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		err = models.E(models.ErrNotFound, "user %s not found", handle)
	}
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, publicProfile{
		Handle:       acc.Handle,
		Name:         acc.Name,
		BalanceCents: acc.BalanceCents,
		XP:           acc.XP,
		Rating:       acc.Rating,
		RatingCount:  acc.RatingCount,
	})
}

// ListTransactions handles GET /transactions?username=, newest first.
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := middleware.ResolveIdentity(r.Context(), "username", r.URL.Query().Get("username"))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	list, err := h.Ledger.History(r.Context(), h.Store, owner)
	if errors.Is(err, models.ErrNotFound) {
		err = models.E(models.ErrNotFound, "user %s not found", owner)
	}
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}
