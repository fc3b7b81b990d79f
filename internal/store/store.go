// Package store defines the persistence contract for quests, accounts, the
// ledger and quest chat. Every quest status change goes through Transition or
// Delete, a single compare-and-set write whose precondition is a QuestGuard.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/campusquest/backend/internal/models"
)

// Store runs units of work. Writes made through the Tx passed to fn are
// all-or-nothing: if fn returns an error none of them survive.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Quests() QuestRepo
	Accounts() AccountRepo
	Ledger() LedgerRepo
	Messages() MessageRepo
}

type QuestRepo interface {
	Create(ctx context.Context, q *models.Quest) error
	// Get returns models.ErrNotFound when the quest does not exist.
	Get(ctx context.Context, id uuid.UUID) (*models.Quest, error)
	// List returns matching quests newest first.
	List(ctx context.Context, f QuestFilter) ([]*models.Quest, error)
	// HasRecent reports whether creator posted a quest titled title at or after since.
	HasRecent(ctx context.Context, creator, title string, since time.Time) (bool, error)
	// Transition applies c only if the quest currently satisfies g. It returns the
	// updated quest, models.ErrNotFound if the quest is absent, or
	// models.ErrConflict if the guard did not match.
	Transition(ctx context.Context, id uuid.UUID, g QuestGuard, c QuestChange) (*models.Quest, error)
	// Delete removes the quest only if it satisfies g and returns the removed row.
	Delete(ctx context.Context, id uuid.UUID, g QuestGuard) (*models.Quest, error)
}

type AccountRepo interface {
	// Create returns models.ErrDuplicate when the handle or email is taken.
	Create(ctx context.Context, a *models.Account) error
	Get(ctx context.Context, handle string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// GetForUpdate reads the account and holds it until the unit of work ends.
	GetForUpdate(ctx context.Context, handle string) (*models.Account, error)
	AddBalance(ctx context.Context, handle string, amount int64) (newBalance int64, err error)
	// DeductBalance returns models.ErrInsufficientFunds when balance < amount.
	DeductBalance(ctx context.Context, handle string, amount int64) (newBalance int64, err error)
	// AddXP adds delta (which may be negative); the result never drops below zero.
	AddXP(ctx context.Context, handle string, delta int) (newXP int, err error)
	SetRating(ctx context.Context, handle string, rating float64, count int) error
}

type LedgerRepo interface {
	Append(ctx context.Context, t *models.Transaction) error
	ListByOwner(ctx context.Context, owner string) ([]*models.Transaction, error)
	ListByQuest(ctx context.Context, questID uuid.UUID) ([]*models.Transaction, error)
}

type MessageRepo interface {
	Append(ctx context.Context, m *models.Message) error
	ListByQuest(ctx context.Context, questID uuid.UUID) ([]*models.Message, error)
}

// QuestFilter selects quests for List. Zero fields do not filter.
type QuestFilter struct {
	Statuses       []string
	CreatedBy      string
	DeadlineBefore *time.Time
	Limit          int
}

// Matches reports whether q passes the filter.
func (f QuestFilter) Matches(q *models.Quest) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, q.Status) {
		return false
	}
	if f.CreatedBy != "" && q.CreatedBy != f.CreatedBy {
		return false
	}
	if f.DeadlineBefore != nil && !q.DeadlineAt.Before(*f.DeadlineBefore) {
		return false
	}
	return true
}

// QuestGuard is the precondition of a compare-and-set write. Zero fields are not checked.
type QuestGuard struct {
	Statuses     []string
	CreatedBy    string
	NotCreatedBy string
	AssignedTo   string
	// PartyOf requires the handle to be the creator or the assignee.
	PartyOf         string
	RequireAssignee bool
	RatingGiven     *bool
}

// Matches reports whether q satisfies the guard.
func (g QuestGuard) Matches(q *models.Quest) bool {
	if len(g.Statuses) > 0 && !contains(g.Statuses, q.Status) {
		return false
	}
	if g.CreatedBy != "" && q.CreatedBy != g.CreatedBy {
		return false
	}
	if g.NotCreatedBy != "" && q.CreatedBy == g.NotCreatedBy {
		return false
	}
	if g.AssignedTo != "" && q.Assignee() != g.AssignedTo {
		return false
	}
	if g.PartyOf != "" && q.CreatedBy != g.PartyOf && q.Assignee() != g.PartyOf {
		return false
	}
	if g.RequireAssignee && q.AssignedTo == nil {
		return false
	}
	if g.RatingGiven != nil && q.RatingGiven != *g.RatingGiven {
		return false
	}
	return true
}

// QuestChange is the write half of a compare-and-set. Zero fields leave the
// column untouched.
type QuestChange struct {
	Status        string
	AssignTo      string
	ClearAssignee bool
	ClearBids     bool
	AppendBid     *models.Bid
	RewardCents   int64
	MarkRated     bool
	// OpenDispute is stored with PreviousStatus taken from the status the row
	// had at the moment of the write.
	OpenDispute    *models.Dispute
	ResolveDispute *DisputeResolution
	At             time.Time
}

// DisputeResolution finalizes an open dispute record.
type DisputeResolution struct {
	Resolution   string
	AdminComment string
	ResolvedBy   string
}

// Apply mutates q in place. Callers must have checked the guard first.
func (c QuestChange) Apply(q *models.Quest) {
	if c.OpenDispute != nil {
		d := *c.OpenDispute
		d.PreviousStatus = q.Status
		d.Status = models.DisputeStatusPending
		q.Dispute = &d
	}
	if c.ResolveDispute != nil && q.Dispute != nil {
		at := c.At
		q.Dispute.Status = models.DisputeStatusResolved
		q.Dispute.Resolution = c.ResolveDispute.Resolution
		q.Dispute.AdminComment = c.ResolveDispute.AdminComment
		q.Dispute.ResolvedBy = c.ResolveDispute.ResolvedBy
		q.Dispute.ResolvedAt = &at
	}
	if c.Status != "" {
		q.Status = c.Status
	}
	if c.ClearAssignee {
		q.AssignedTo = nil
	}
	if c.AssignTo != "" {
		a := c.AssignTo
		q.AssignedTo = &a
	}
	if c.ClearBids {
		q.Bids = []models.Bid{}
	}
	if c.AppendBid != nil {
		q.Bids = append(q.Bids, *c.AppendBid)
	}
	if c.RewardCents > 0 {
		q.RewardCents = c.RewardCents
	}
	if c.MarkRated {
		q.RatingGiven = true
	}
	if !c.At.IsZero() {
		q.UpdatedAt = c.At
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
