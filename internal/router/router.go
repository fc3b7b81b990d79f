package router

import (
	"net/http"

	"github.com/campusquest/backend/internal/auth"
	"github.com/campusquest/backend/internal/handlers"
	"github.com/campusquest/backend/internal/middleware"
	"github.com/campusquest/backend/internal/validation"
)

// Deps are the collaborators the API routes need. RateLimit and Metrics are
// optional.
type Deps struct {
	Auth      *auth.Handler
	Quests    *handlers.QuestHandler
	Disputes  *handlers.DisputeHandler
	Accounts  *handlers.AccountHandler
	Validator middleware.BodyValidator
	Tokens    middleware.TokenValidator
	RateLimit func(http.Handler) http.Handler
	Metrics   http.Handler
}

// New returns the root handler. Middleware chain for API routes:
// RateLimit -> Identity -> (ValidateBody on write routes) -> handler.
func New(d Deps) http.Handler {
	api := http.NewServeMux()

	body := func(schema string, h http.HandlerFunc) http.Handler {
		return middleware.ValidateBody(d.Validator, schema)(h)
	}

	api.Handle("POST /auth/register", body(validation.Register, d.Auth.Register))
	api.Handle("POST /auth/login", body(validation.Login, d.Auth.Login))
	api.HandleFunc("GET /auth/me", d.Auth.Me)

	api.HandleFunc("GET /quests", d.Quests.ListQuests)
	api.Handle("POST /quests", body(validation.PostQuest, d.Quests.PostQuest))
	api.HandleFunc("GET /quests/{id}", d.Quests.GetQuest)
	api.HandleFunc("DELETE /quests/{id}", d.Quests.CancelQuest)
	api.Handle("PUT /quests/{id}/accept", body(validation.HeroAction, d.Quests.AcceptQuest))
	api.Handle("POST /quests/{id}/bid", body(validation.PlaceBid, d.Quests.PlaceBid))
	api.Handle("PUT /quests/{id}/accept-bid", body(validation.AcceptBid, d.Quests.AcceptBid))
	api.Handle("POST /quests/{id}/complete", body(validation.CompleteQuest, d.Quests.CompleteQuest))
	api.Handle("PUT /quests/{id}/resign", body(validation.HeroAction, d.Quests.ResignQuest))
	api.Handle("POST /quests/{id}/rate", body(validation.RateHero, d.Quests.RateHero))
	api.HandleFunc("GET /quests/{id}/messages", d.Quests.ListMessages)
	api.Handle("POST /quests/{id}/messages", body(validation.PostMessage, d.Quests.PostMessage))

	api.HandleFunc("GET /disputes", d.Disputes.ListDisputes)
	api.Handle("POST /disputes/{id}/raise", body(validation.RaiseDispute, d.Disputes.RaiseDispute))
	api.Handle("POST /disputes/{id}/resolve", body(validation.ResolveDispute, d.Disputes.ResolveDispute))

	api.HandleFunc("GET /users/{handle}", d.Accounts.GetUser)
	api.HandleFunc("GET /transactions", d.Accounts.ListTransactions)

	var chain http.Handler = middleware.Identity(d.Tokens)(api)
	if d.RateLimit != nil {
		chain = d.RateLimit(chain)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		root.Handle("GET /metrics", d.Metrics)
	}
	root.Handle("/", chain)
	return root
}
