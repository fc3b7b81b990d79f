package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/campusquest/backend/internal/middleware"
	"github.com/campusquest/backend/internal/models"
)

// Request/response structs use snake_case JSON.

type RegisterRequest struct {
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest.Login is a handle or an email.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, h.log, models.E(models.ErrValidation, "invalid JSON"))
		return
	}
	acc, err := h.svc.Register(r.Context(), RegisterInput{
		Handle:   req.Handle,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	h.log.Info("account registered", "handle", acc.Handle)
	middleware.WriteJSON(w, http.StatusCreated, acc)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, h.log, models.E(models.ErrValidation, "invalid JSON"))
		return
	}
	if req.Login == "" || req.Password == "" {
		middleware.WriteError(w, h.log, models.E(models.ErrValidation, "missing login or password"))
		return
	}
	token, acc, err := h.svc.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, LoginResponse{Token: token, Account: acc})
}

// Me handles GET /auth/me. The signed-in handle wins over ?username=.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	handle, err := middleware.ResolveIdentity(r.Context(), "username", strings.TrimSpace(r.URL.Query().Get("username")))
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	acc, err := h.svc.Profile(r.Context(), handle)
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, acc)
}
