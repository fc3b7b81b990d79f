package models

import (
	"time"

	"github.com/google/uuid"
)

// Quest status enums.
const (
	QuestStatusOpen      = "open"
	QuestStatusActive    = "active"
	QuestStatusCompleted = "completed"
	QuestStatusExpired   = "expired"
	QuestStatusDisputed  = "disputed"
	QuestStatusResolved  = "resolved"
)

// Urgency tiers.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyUrgent = "urgent"
)

// Dispute sub-status and resolution policies.
const (
	DisputeStatusPending  = "pending"
	DisputeStatusResolved = "resolved"

	ResolutionRefundPoster = "refund_poster"
	ResolutionPayHero      = "pay_hero"
	ResolutionSplit        = "split"
)

// ValidUrgency reports whether u is a known urgency tier.
func ValidUrgency(u string) bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyUrgent
}

// ValidResolution reports whether r is a known dispute resolution policy.
func ValidResolution(r string) bool {
	return r == ResolutionRefundPoster || r == ResolutionPayHero || r == ResolutionSplit
}

type Bid struct {
	Bidder      string    `json:"bidder"`
	AmountCents int64     `json:"amount_cents"`
	Rating      float64   `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}

type Dispute struct {
	RaisedBy string `json:"raised_by"`
	Reason   string `json:"reason"`
	Status   string `json:"status"`
	// PreviousStatus is the quest status when the dispute was raised; "completed"
	// means the reward already reached the hero.
	PreviousStatus string     `json:"previous_status"`
	Resolution     string     `json:"resolution,omitempty"`
	AdminComment   string     `json:"admin_comment,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// WasPaid reports whether the hero had been paid before the dispute was raised.
func (d *Dispute) WasPaid() bool {
	return d != nil && d.PreviousStatus == QuestStatusCompleted
}

type Quest struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RewardCents int64     `json:"reward_cents"`
	XP          int       `json:"xp"`
	Urgency     string    `json:"urgency"`
	Location    string    `json:"location"`
	Deadline    string    `json:"deadline"`
	DeadlineAt  time.Time `json:"deadline_at"`
	CreatedBy   string    `json:"created_by"`
	AssignedTo  *string   `json:"assigned_to"`
	Code        string    `json:"code,omitempty"`
	Status      string    `json:"status"`
	Bids        []Bid     `json:"bids"`
	RatingGiven bool      `json:"rating_given"`
	Dispute     *Dispute  `json:"dispute,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignee returns the assigned hero or "".
func (q *Quest) Assignee() string {
	if q.AssignedTo == nil {
		return ""
	}
	return *q.AssignedTo
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (q *Quest) Clone() *Quest {
	cp := *q
	if q.AssignedTo != nil {
		a := *q.AssignedTo
		cp.AssignedTo = &a
	}
	cp.Bids = append([]Bid(nil), q.Bids...)
	if q.Dispute != nil {
		d := *q.Dispute
		if q.Dispute.ResolvedAt != nil {
			t := *q.Dispute.ResolvedAt
			d.ResolvedAt = &t
		}
		cp.Dispute = &d
	}
	return &cp
}

// VisibleTo returns a copy with the confirmation code removed unless requester
// is the creator.
func (q *Quest) VisibleTo(requester string) *Quest {
	cp := q.Clone()
	if requester == "" || requester != q.CreatedBy {
		cp.Code = ""
	}
	return cp
}

// LatestBids deduplicates bids by bidder, keeping each bidder's most recent
// entry, ordered by when that entry was placed.
func LatestBids(bids []Bid) []Bid {
	seen := make(map[string]bool, len(bids))
	out := make([]Bid, 0, len(bids))
	for i := len(bids) - 1; i >= 0; i-- {
		if seen[bids[i].Bidder] {
			continue
		}
		seen[bids[i].Bidder] = true
		out = append(out, bids[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
