package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/campusquest/backend/internal/escrow"
	"github.com/campusquest/backend/internal/middleware"
	"github.com/campusquest/backend/internal/store"
)

type QuestHandler struct {
	Engine *escrow.Engine
	Logger *slog.Logger
}

// --- GET /quests ---

// ListQuests returns quests newest first. ?status= may repeat; the code is
// only shown to the requester's own quests.
func (h *QuestHandler) ListQuests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	requester, err := optionalIdentity(r, "requester", q.Get("requester"))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	list, err := h.Engine.ListQuests(r.Context(), requester, store.QuestFilter{
		Statuses:  q["status"],
		CreatedBy: q.Get("created_by"),
	})
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewsFor(list, requester))
}

// --- GET /quests/{id} ---

func (h *QuestHandler) GetQuest(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	requester, err := optionalIdentity(r, "requester", r.URL.Query().Get("requester"))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Engine.GetQuest(r.Context(), id, requester)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewFor(quest, requester))
}

// --- POST /quests ---

type postQuestRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RewardCents int64     `json:"reward_cents"`
	XP          int       `json:"xp"`
	Urgency     string    `json:"urgency"`
	Location    string    `json:"location"`
	Deadline    string    `json:"deadline"`
	DeadlineAt  time.Time `json:"deadline_at"`
	CreatedBy   string    `json:"created_by"`
}

func (h *QuestHandler) PostQuest(w http.ResponseWriter, r *http.Request) {
	var req postQuestRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	creator, err := middleware.ResolveIdentity(r.Context(), "created_by", req.CreatedBy)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Engine.PostQuest(r.Context(), escrow.PostQuestInput{
		Creator:     creator,
		Title:       req.Title,
		Description: req.Description,
		RewardCents: req.RewardCents,
		XP:          req.XP,
		Urgency:     req.Urgency,
		Location:    req.Location,
		Deadline:    req.Deadline,
		DeadlineAt:  req.DeadlineAt,
	})
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, viewFor(quest, creator))
}

// --- PUT /quests/{id}/accept ---

type heroRequest struct {
	Hero string `json:"hero"`
}

func (h *QuestHandler) AcceptQuest(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req heroRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	hero, err := middleware.ResolveIdentity(r.Context(), "hero", req.Hero)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Engine.AcceptQuest(r.Context(), id, hero)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewFor(quest, hero))
}

// --- POST /quests/{id}/bid ---

type bidRequest struct {
	Hero        string `json:"hero"`
	AmountCents int64  `json:"amount_cents"`
}

func (h *QuestHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req bidRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	hero, err := middleware.ResolveIdentity(r.Context(), "hero", req.Hero)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Engine.PlaceBid(r.Context(), id, hero, req.AmountCents)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewFor(quest, hero))
}

// --- PUT /quests/{id}/accept-bid ---

type acceptBidRequest struct {
	Creator        string `json:"creator"`
	Hero           string `json:"hero"`
	BidAmountCents int64  `json:"bid_amount_cents"`
}

func (h *QuestHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req acceptBidRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	creator, err := middleware.ResolveIdentity(r.Context(), "creator", req.Creator)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Engine.AcceptBid(r.Context(), id, creator, req.Hero, req.BidAmountCents)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewFor(quest, creator))
}

// --- POST /quests/{id}/complete ---

type completeRequest struct {
	Hero string `json:"hero"`
	Code string `json:"code"`
}

func (h *QuestHandler) CompleteQuest(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req completeRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	hero, err := middleware.ResolveIdentity(r.Context(), "hero", req.Hero)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Engine.CompleteQuest(r.Context(), id, hero, req.Code)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	view := viewFor(quest, hero)
	middleware.WriteJSON(w, http.StatusOK, messageResponse{
		Message: "Quest completed! " + escrow.FormatCents(quest.RewardCents) + " released to " + hero + ".",
		Quest:   &view,
	})
}

// --- PUT /quests/{id}/resign ---

func (h *QuestHandler) ResignQuest(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req heroRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	hero, err := middleware.ResolveIdentity(r.Context(), "hero", req.Hero)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	quest, err := h.Engine.ResignQuest(r.Context(), id, hero)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	view := viewFor(quest, hero)
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "You have resigned from the quest.", Quest: &view})
}

// --- DELETE /quests/{id} ---

type cancelRequest struct {
	Creator string `json:"creator"`
}

// CancelQuest takes the creator from ?creator= or a JSON body.
func (h *QuestHandler) CancelQuest(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	req := cancelRequest{Creator: r.URL.Query().Get("creator")}
	if req.Creator == "" {
		if err := decode(r, &req); err != nil {
			middleware.WriteError(w, h.Logger, err)
			return
		}
	}
	creator, err := middleware.ResolveIdentity(r.Context(), "creator", req.Creator)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	if err := h.Engine.CancelQuest(r.Context(), id, creator); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Quest cancelled and escrow refunded."})
}

// --- POST /quests/{id}/rate ---

type rateRequest struct {
	Rater  string `json:"rater"`
	Rating int    `json:"rating"`
}

type rateResponse struct {
	Rating float64 `json:"rating"`
}

// RateHero accepts an anonymous rating unless a rater is known, in which case
// only the creator may rate.
func (h *QuestHandler) RateHero(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req rateRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	rater, err := optionalIdentity(r, "rater", req.Rater)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	rating, err := h.Engine.RateHero(r.Context(), id, rater, req.Rating)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rateResponse{Rating: rating})
}

// --- GET/POST /quests/{id}/messages ---

type postMessageRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func (h *QuestHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	requester, err := middleware.ResolveIdentity(r.Context(), "requester", r.URL.Query().Get("requester"))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	list, err := h.Engine.ListMessages(r.Context(), id, requester)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}

func (h *QuestHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, err := questID(r)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	var req postMessageRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	sender, err := middleware.ResolveIdentity(r.Context(), "sender", req.Sender)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	msg, err := h.Engine.PostMessage(r.Context(), id, sender, req.Text)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, msg)
}
