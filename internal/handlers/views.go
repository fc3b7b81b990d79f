package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/campusquest/backend/internal/middleware"
	"github.com/campusquest/backend/internal/models"
)

// questView is the wire shape of a quest: the stored document plus the
// bidders projection.
type questView struct {
	*models.Quest
	Bidders []models.Bid `json:"bidders"`
}

// viewFor redacts the confirmation code unless viewer created the quest.
func viewFor(q *models.Quest, viewer string) questView {
	v := q.VisibleTo(viewer)
	if v.Bids == nil {
		v.Bids = []models.Bid{}
	}
	return questView{Quest: v, Bidders: models.LatestBids(v.Bids)}
}

func viewsFor(list []*models.Quest, viewer string) []questView {
	out := make([]questView, 0, len(list))
	for _, q := range list {
		out = append(out, viewFor(q, viewer))
	}
	return out
}

type messageResponse struct {
	Message string     `json:"message"`
	Quest   *questView `json:"quest,omitempty"`
}

func questID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, models.E(models.ErrValidation, "invalid quest id")
	}
	return id, nil
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || err == io.EOF {
		return nil
	}
	return models.E(models.ErrValidation, "invalid JSON")
}

// optionalIdentity is middleware.ResolveIdentity for fields an anonymous
// caller may leave out.
func optionalIdentity(r *http.Request, field, claimed string) (string, error) {
	if strings.TrimSpace(claimed) == "" && middleware.HandleFromCtx(r.Context()) == "" {
		return "", nil
	}
	return middleware.ResolveIdentity(r.Context(), field, claimed)
}
