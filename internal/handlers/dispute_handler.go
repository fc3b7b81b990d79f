package handlers

import (
	"log/slog"
	"net/http"

	"github.com/campusquest/backend/internal/disputes"
	"github.com/campusquest/backend/internal/middleware"
)

type DisputeHandler struct {
	Resolver *disputes.Resolver
	Logger   *slog.Logger
}

type raiseRequest struct {
	RaisedBy string `json:"raised_by"`
	Reason   string `json:"reason"`
}

// RaiseDispute handles POST /disputes/{id}/raise.
func (h *DisputeHandler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req raiseRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	raiser, err := middleware.ResolveIdentity(r.Context(), "raised_by", req.RaisedBy)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Resolver.RaiseDispute(r.Context(), id, raiser, req.Reason)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewFor(quest, raiser))
}

// ListDisputes handles GET /disputes.
func (h *DisputeHandler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	list, err := h.Resolver.ListDisputes(r.Context())
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewsFor(list, ""))
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	Admin      string `json:"admin"`
}

// ResolveDispute handles POST /disputes/{id}/resolve.
func (h *DisputeHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	admin, err := middleware.ResolveIdentity(r.Context(), "admin", req.Admin)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Resolver.ResolveDispute(r.Context(), id, req.Resolution, admin)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewFor(quest, ""))
}
