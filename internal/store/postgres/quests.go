package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

const questColumns = `id, title, description, reward_cents, xp, urgency, location, deadline, deadline_at,
	created_by, assigned_to, code, status, bids, rating_given, dispute, created_at, updated_at`

type questRepo struct {
	tx pgx.Tx
}

func (r questRepo) Create(ctx context.Context, q *models.Quest) error {
	bids := q.Bids
	if bids == nil {
		bids = []models.Bid{}
	}
	bidsJSON, err := json.Marshal(bids)
	if err != nil {
		return err
	}
	var disputeJSON []byte
	if q.Dispute != nil {
		if disputeJSON, err = json.Marshal(q.Dispute); err != nil {
			return err
		}
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO quests (id, title, description, reward_cents, xp, urgency, location, deadline, deadline_at,
			created_by, assigned_to, code, status, bids, rating_given, dispute, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`, q.ID, q.Title, q.Description, q.RewardCents, q.XP, q.Urgency, q.Location, q.Deadline, q.DeadlineAt,
		q.CreatedBy, q.AssignedTo, q.Code, q.Status, json.RawMessage(bidsJSON), q.RatingGiven, nullableJSON(disputeJSON), q.CreatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicate
	}
	return err
}

func (r questRepo) Get(ctx context.Context, id uuid.UUID) (*models.Quest, error) {
	q, err := scanQuest(r.tx.QueryRow(ctx, `SELECT `+questColumns+` FROM quests WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

func (r questRepo) List(ctx context.Context, f store.QuestFilter) ([]*models.Quest, error) {
	var b sqlBuilder
	where := []string{"TRUE"}
	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+b.arg(f.Statuses)+")")
	}
	if f.CreatedBy != "" {
		where = append(where, "created_by = "+b.arg(f.CreatedBy))
	}
	if f.DeadlineBefore != nil {
		where = append(where, "deadline_at < "+b.arg(*f.DeadlineBefore))
	}
	query := `SELECT ` + questColumns + ` FROM quests WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT " + b.arg(f.Limit)
	}
	rows, err := r.tx.Query(ctx, query, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]*models.Quest, 0)
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

func (r questRepo) HasRecent(ctx context.Context, creator, title string, since time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM quests WHERE created_by = $1 AND title = $2 AND created_at >= $3)
	`, creator, title, since).Scan(&exists)
	return exists, err
}

func (r questRepo) Transition(ctx context.Context, id uuid.UUID, g store.QuestGuard, c store.QuestChange) (*models.Quest, error) {
	var b sqlBuilder
	idArg := b.arg(id)
	set, err := changeSQL(&b, c)
	if err != nil {
		return nil, err
	}
	where := append([]string{"id = " + idArg}, guardSQL(&b, g)...)
	query := fmt.Sprintf(`UPDATE quests SET %s WHERE %s RETURNING %s`,
		strings.Join(set, ", "), strings.Join(where, " AND "), questColumns)

	q, err := scanQuest(r.tx.QueryRow(ctx, query, b.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r questRepo) Delete(ctx context.Context, id uuid.UUID, g store.QuestGuard) (*models.Quest, error) {
	var b sqlBuilder
	where := append([]string{"id = " + b.arg(id)}, guardSQL(&b, g)...)
	q, err := scanQuest(r.tx.QueryRow(ctx,
		`DELETE FROM quests WHERE `+strings.Join(where, " AND ")+` RETURNING `+questColumns, b.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r questRepo) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrConflict
}

func guardSQL(b *sqlBuilder, g store.QuestGuard) []string {
	var where []string
	if len(g.Statuses) > 0 {
		where = append(where, "status = ANY("+b.arg(g.Statuses)+")")
	}
	if g.CreatedBy != "" {
		where = append(where, "created_by = "+b.arg(g.CreatedBy))
	}
	if g.NotCreatedBy != "" {
		where = append(where, "created_by <> "+b.arg(g.NotCreatedBy))
	}
	if g.AssignedTo != "" {
		where = append(where, "assigned_to = "+b.arg(g.AssignedTo))
	}
	if g.PartyOf != "" {
		p := b.arg(g.PartyOf)
		where = append(where, "(created_by = "+p+" OR assigned_to = "+p+")")
	}
	if g.RequireAssignee {
		where = append(where, "assigned_to IS NOT NULL")
	}
	if g.RatingGiven != nil {
		where = append(where, "rating_given = "+b.arg(*g.RatingGiven))
	}
	return where
}

// changeSQL renders the SET list. Right-hand column references see the row as
// it was before the update, which is what previous_status relies on.
func changeSQL(b *sqlBuilder, c store.QuestChange) ([]string, error) {
	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	set := []string{"updated_at = " + b.arg(at)}
	if c.Status != "" {
		set = append(set, "status = "+b.arg(c.Status))
	}
	switch {
	case c.AssignTo != "":
		set = append(set, "assigned_to = "+b.arg(c.AssignTo))
	case c.ClearAssignee:
		set = append(set, "assigned_to = NULL")
	}
	switch {
	case c.ClearBids:
		set = append(set, "bids = '[]'::jsonb")
	case c.AppendBid != nil:
		raw, err := json.Marshal(c.AppendBid)
		if err != nil {
			return nil, err
		}
		set = append(set, "bids = bids || jsonb_build_array("+b.arg(json.RawMessage(raw))+"::jsonb)")
	}
	if c.RewardCents > 0 {
		set = append(set, "reward_cents = "+b.arg(c.RewardCents))
	}
	if c.MarkRated {
		set = append(set, "rating_given = TRUE")
	}
	if c.OpenDispute != nil {
		d := *c.OpenDispute
		d.Status = models.DisputeStatusPending
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		set = append(set, "dispute = "+b.arg(json.RawMessage(raw))+"::jsonb || jsonb_build_object('previous_status', status)")
	}
	if c.ResolveDispute != nil {
		raw, err := json.Marshal(map[string]any{
			"status":        models.DisputeStatusResolved,
			"resolution":    c.ResolveDispute.Resolution,
			"admin_comment": c.ResolveDispute.AdminComment,
			"resolved_by":   c.ResolveDispute.ResolvedBy,
			"resolved_at":   at,
		})
		if err != nil {
			return nil, err
		}
		set = append(set, "dispute = COALESCE(dispute, '{}'::jsonb) || "+b.arg(json.RawMessage(raw))+"::jsonb")
	}
	return set, nil
}

func scanQuest(row rowScanner) (*models.Quest, error) {
	var q models.Quest
	var bids, dispute []byte
	err := row.Scan(&q.ID, &q.Title, &q.Description, &q.RewardCents, &q.XP, &q.Urgency, &q.Location, &q.Deadline, &q.DeadlineAt,
		&q.CreatedBy, &q.AssignedTo, &q.Code, &q.Status, &bids, &q.RatingGiven, &dispute, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.Bids = []models.Bid{}
	if len(bids) > 0 {
		if err := json.Unmarshal(bids, &q.Bids); err != nil {
			return nil, fmt.Errorf("quest %s bids: %w", q.ID, err)
		}
	}
	if len(dispute) > 0 {
		q.Dispute = &models.Dispute{}
		if err := json.Unmarshal(dispute, q.Dispute); err != nil {
			return nil, fmt.Errorf("quest %s dispute: %w", q.ID, err)
		}
	}
	return &q, nil
}

func nullableJSON(raw []byte) any {
	if raw == nil {
		return nil
	}
	return json.RawMessage(raw)
}

// sqlBuilder hands out positional placeholders.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}
