// Package escrow runs the quest lifecycle: posting with escrow, acceptance,
// bidding, completion, resignation, cancellation and rating. Each operation is
// one store unit of work whose quest write is a guarded compare-and-set, so a
// lost race changes nothing and reports models.ErrConflict.
package escrow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/metrics"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/notify"
	"github.com/campusquest/backend/internal/store"
)

const DefaultDuplicateWindow = 10 * time.Second

type Options struct {
	DuplicateWindow time.Duration
	// BroadcastNewQuests pushes a notification to all devices on PostQuest.
	BroadcastNewQuests bool
	Notifier           notify.Notifier
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
	Now                func() time.Time
	NewCode            func() (string, error)
}

type Engine struct {
	store           store.Store
	ledger          *ledger.Service
	notifier        notify.Notifier
	metrics         *metrics.Metrics
	logger          *slog.Logger
	now             func() time.Time
	newCode         func() (string, error)
	duplicateWindow time.Duration
	broadcast       bool
}

func NewEngine(st store.Store, led *ledger.Service, opts Options) *Engine {
	e := &Engine{
		store:           st,
		ledger:          led,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		now:             opts.Now,
		newCode:         opts.NewCode,
		duplicateWindow: opts.DuplicateWindow,
		broadcast:       opts.BroadcastNewQuests,
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newCode == nil {
		e.newCode = NewConfirmationCode
	}
	if e.duplicateWindow <= 0 {
		e.duplicateWindow = DefaultDuplicateWindow
	}
	return e
}

// NewConfirmationCode returns a random 4-digit code in 1000-9999.
func NewConfirmationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", 1000+n.Int64()), nil
}

type PostQuestInput struct {
	Creator     string
	Title       string
	Description string
	RewardCents int64
	XP          int
	Urgency     string
	Location    string
	Deadline    string
	DeadlineAt  time.Time
}

func (in *PostQuestInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Creator = strings.TrimSpace(in.Creator)
	if in.Creator == "" {
		return models.E(models.ErrValidation, "creator is required")
	}
	if in.Title == "" {
		return models.E(models.ErrValidation, "title is required")
	}
	if in.RewardCents <= 0 {
		return models.E(models.ErrValidation, "reward must be positive")
	}
	if in.XP < 0 {
		return models.E(models.ErrValidation, "xp cannot be negative")
	}
	if in.Urgency == "" {
		in.Urgency = models.UrgencyMedium
	}
	if !models.ValidUrgency(in.Urgency) {
		return models.E(models.ErrValidation, "urgency must be low, medium or urgent")
	}
	if in.DeadlineAt.IsZero() {
		return models.E(models.ErrValidation, "deadline_at is required")
	}
	if in.Deadline == "" {
		in.Deadline = in.DeadlineAt.Format("Jan 2, 3:04 PM")
	}
	return nil
}

// PostQuest escrows the reward from the creator and opens the quest.
func (e *Engine) PostQuest(ctx context.Context, in PostQuestInput) (*models.Quest, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	code, err := e.newCode()
	if err != nil {
		return nil, fmt.Errorf("confirmation code: %w", err)
	}
	now := e.now()
	q := &models.Quest{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		RewardCents: in.RewardCents,
		XP:          in.XP,
		Urgency:     in.Urgency,
		Location:    in.Location,
		Deadline:    in.Deadline,
		DeadlineAt:  in.DeadlineAt.UTC(),
		CreatedBy:   in.Creator,
		Code:        code,
		Status:      models.QuestStatusOpen,
		Bids:        []models.Bid{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = e.store.InTx(ctx, func(tx store.Tx) error {
		creator, err := tx.Accounts().GetForUpdate(ctx, in.Creator)
		if err != nil {
			return explain(err, models.ErrNotFound, "user %s not found", in.Creator)
		}
		dup, err := tx.Quests().HasRecent(ctx, in.Creator, in.Title, now.Add(-e.duplicateWindow))
		if err != nil {
			return err
		}
		if dup {
			return models.E(models.ErrRateLimited, "quest %q was just posted; wait a few seconds", in.Title)
		}
		if creator.BalanceCents < in.RewardCents {
			return models.E(models.ErrInsufficientFunds, "insufficient funds")
		}
		if err := tx.Quests().Create(ctx, q); err != nil {
			return err
		}
		_, err = e.ledger.Debit(ctx, tx, in.Creator, &q.ID, ledger.Describe(ledger.LabelEscrow, q.Title), q.RewardCents)
		return explain(err, models.ErrInsufficientFunds, "insufficient funds")
	})
	e.observe("post_quest", err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("quest posted", "quest_id", q.ID, "creator", q.CreatedBy, "reward_cents", q.RewardCents)

	if e.broadcast {
		e.notifier.Notify(ctx, notify.Message{
			Kind:      notify.KindQuestPosted,
			Broadcast: true,
			Subject:   "New quest: " + q.Title,
			Body:      fmt.Sprintf("Reward %s · %s · %s", FormatCents(q.RewardCents), q.Urgency, q.Location),
		})
	}
	return q, nil
}

// AcceptQuest assigns an open quest to hero. Only one concurrent caller wins.
func (e *Engine) AcceptQuest(ctx context.Context, questID uuid.UUID, hero string) (*models.Quest, error) {
	if hero == "" {
		return nil, models.E(models.ErrValidation, "hero is required")
	}
	var quest *models.Quest
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Accounts().Get(ctx, hero); err != nil {
			return explain(err, models.ErrNotFound, "user %s not found", hero)
		}
		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{Statuses: []string{models.QuestStatusOpen}},
			store.QuestChange{Status: models.QuestStatusActive, AssignTo: hero, At: e.now()})
		if err != nil {
			return questErr(err, "quest already taken")
		}
		// returning an error undoes the assignment
		if q.CreatedBy == hero {
			return models.E(models.ErrForbidden, "you cannot accept your own quest")
		}
		quest = q
		return nil
	})
	e.observe("accept_quest", err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("quest accepted", "quest_id", questID, "hero", hero)
	return quest, nil
}

// PlaceBid appends a counter-offer. Bidding again adds another entry.
func (e *Engine) PlaceBid(ctx context.Context, questID uuid.UUID, hero string, amountCents int64) (*models.Quest, error) {
	if hero == "" {
		return nil, models.E(models.ErrValidation, "hero is required")
	}
	if amountCents <= 0 {
		return nil, models.E(models.ErrValidation, "bid amount must be positive")
	}
	var quest *models.Quest
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		bidder, err := tx.Accounts().Get(ctx, hero)
		if err != nil {
			return explain(err, models.ErrNotFound, "user %s not found", hero)
		}
		now := e.now()
		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{Statuses: []string{models.QuestStatusOpen}, NotCreatedBy: hero},
			store.QuestChange{
				AppendBid: &models.Bid{Bidder: hero, AmountCents: amountCents, Rating: bidder.Rating, CreatedAt: now},
				At:        now,
			})
		if err != nil {
			return questErr(err, "bidding is closed for this quest")
		}
		quest = q
		return nil
	})
	e.observe("place_bid", err)
	return quest, err
}

// AcceptBid assigns hero at their bid price and reconciles escrow with the
// difference. If the creator cannot cover a higher bid, the quest stays open.
func (e *Engine) AcceptBid(ctx context.Context, questID uuid.UUID, creator, hero string, bidCents int64) (*models.Quest, error) {
	if creator == "" || hero == "" {
		return nil, models.E(models.ErrValidation, "creator and hero are required")
	}
	if bidCents <= 0 {
		return nil, models.E(models.ErrValidation, "bid amount must be positive")
	}
	if creator == hero {
		return nil, models.E(models.ErrForbidden, "you cannot accept your own bid")
	}
	var quest *models.Quest
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		before, err := tx.Quests().Get(ctx, questID)
		if err != nil {
			return explain(err, models.ErrNotFound, "quest not found")
		}
		if !hasBid(before.Bids, hero, bidCents) {
			return models.E(models.ErrValidation, "%s has no bid of %s on this quest", hero, FormatCents(bidCents))
		}
		if _, err := tx.Accounts().Get(ctx, hero); err != nil {
			return explain(err, models.ErrNotFound, "user %s not found", hero)
		}
		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{Statuses: []string{models.QuestStatusOpen}, CreatedBy: creator},
			store.QuestChange{
				Status:      models.QuestStatusActive,
				AssignTo:    hero,
				ClearBids:   true,
				RewardCents: bidCents,
				At:          e.now(),
			})
		if err != nil {
			return questErr(err, "quest is closed or not yours")
		}

		diff := bidCents - before.RewardCents
		switch {
		case diff > 0:
			_, err = e.ledger.Debit(ctx, tx, creator, &q.ID, ledger.Describe(ledger.LabelEscrowTopUp, q.Title), diff)
			if err != nil {
				return explain(err, models.ErrInsufficientFunds, "insufficient funds to cover the %s top-up", FormatCents(diff))
			}
		case diff < 0:
			if _, err := e.ledger.Credit(ctx, tx, creator, &q.ID, ledger.Describe(ledger.LabelRefundSavedBid, q.Title), -diff); err != nil {
				return err
			}
		}
		quest = q
		return nil
	})
	e.observe("accept_bid", err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("bid accepted", "quest_id", questID, "hero", hero, "reward_cents", bidCents)
	return quest, nil
}

// CompleteQuest pays the assigned hero once they present the creator's code.
// State and assignee are checked before the code so a caller who is not the
// assignee learns nothing about the code.
func (e *Engine) CompleteQuest(ctx context.Context, questID uuid.UUID, hero, code string) (*models.Quest, error) {
	if hero == "" {
		return nil, models.E(models.ErrValidation, "hero is required")
	}
	var quest *models.Quest
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		current, err := tx.Quests().Get(ctx, questID)
		if err != nil {
			return explain(err, models.ErrNotFound, "quest not found")
		}
		if current.Status != models.QuestStatusActive || current.Assignee() != hero {
			return models.E(models.ErrConflict, "quest is not active or not assigned to you")
		}
		if strings.TrimSpace(code) != current.Code {
			return models.E(models.ErrInvalidCode, "invalid confirmation code")
		}
		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{Statuses: []string{models.QuestStatusActive}, AssignedTo: hero},
			store.QuestChange{Status: models.QuestStatusCompleted, At: e.now()})
		if err != nil {
			return questErr(err, "quest is not active or not assigned to you")
		}
		if _, err := e.ledger.Credit(ctx, tx, hero, &q.ID, ledger.Describe(ledger.LabelReward, q.Title), q.RewardCents); err != nil {
			return explain(err, models.ErrNotFound, "user %s not found", hero)
		}
		if _, err := tx.Accounts().AddXP(ctx, hero, q.XP); err != nil {
			return err
		}
		quest = q
		return nil
	})
	e.observe("complete_quest", err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("quest completed", "quest_id", questID, "hero", hero, "reward_cents", quest.RewardCents)
	return quest, nil
}

// ResignQuest releases the hero's assignment and reopens the quest.
func (e *Engine) ResignQuest(ctx context.Context, questID uuid.UUID, hero string) (*models.Quest, error) {
	var quest *models.Quest
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{Statuses: []string{models.QuestStatusActive}, AssignedTo: hero},
			store.QuestChange{Status: models.QuestStatusOpen, ClearAssignee: true, At: e.now()})
		if errors.Is(err, models.ErrConflict) {
			return models.E(models.ErrNotFound, "you are not assigned to an active quest with this id")
		}
		if err != nil {
			return explain(err, models.ErrNotFound, "quest not found")
		}
		quest = q
		return nil
	})
	e.observe("resign_quest", err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("hero resigned", "quest_id", questID, "hero", hero)
	return quest, nil
}

// CancelQuest deletes an open quest and refunds its escrow to the creator.
func (e *Engine) CancelQuest(ctx context.Context, questID uuid.UUID, creator string) error {
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		q, err := tx.Quests().Delete(ctx, questID,
			store.QuestGuard{Statuses: []string{models.QuestStatusOpen}, CreatedBy: creator})
		if err != nil {
			return questErr(err, "quest cannot be cancelled")
		}
		_, err = e.ledger.Credit(ctx, tx, creator, &q.ID, ledger.Describe(ledger.LabelRefundCancelled, q.Title), q.RewardCents)
		return err
	})
	e.observe("cancel_quest", err)
	if err == nil {
		e.logger.Info("quest cancelled", "quest_id", questID, "creator", creator)
	}
	return err
}

// RateHero records the one rating a quest may give its hero and returns the
// hero's new average. rater is optional; when set it must be the creator.
func (e *Engine) RateHero(ctx context.Context, questID uuid.UUID, rater string, value int) (float64, error) {
	if value < 1 || value > 5 {
		return 0, models.E(models.ErrValidation, "rating must be between 1 and 5")
	}
	notRated := false
	var rating float64
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{RatingGiven: &notRated, RequireAssignee: true, CreatedBy: rater},
			store.QuestChange{MarkRated: true, At: e.now()})
		if err != nil {
			return questErr(err, "quest already rated, has no hero, or is not yours")
		}
		// the average is computed from the row, so hold it until commit
		hero, err := tx.Accounts().GetForUpdate(ctx, q.Assignee())
		if err != nil {
			return explain(err, models.ErrNotFound, "hero %s not found", q.Assignee())
		}
		var count int
		rating, count = hero.RatingWith(value)
		return tx.Accounts().SetRating(ctx, hero.Handle, rating, count)
	})
	e.observe("rate_hero", err)
	return rating, err
}

// GetQuest returns the quest as seen by requester.
func (e *Engine) GetQuest(ctx context.Context, questID uuid.UUID, requester string) (*models.Quest, error) {
	var quest *models.Quest
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		q, err := tx.Quests().Get(ctx, questID)
		if err != nil {
			return explain(err, models.ErrNotFound, "quest not found")
		}
		quest = q.VisibleTo(requester)
		return nil
	})
	return quest, err
}

// ListQuests returns quests newest first, hiding codes the requester may not see.
func (e *Engine) ListQuests(ctx context.Context, requester string, f store.QuestFilter) ([]*models.Quest, error) {
	var list []*models.Quest
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		all, err := tx.Quests().List(ctx, f)
		if err != nil {
			return err
		}
		list = make([]*models.Quest, 0, len(all))
		for _, q := range all {
			list = append(list, q.VisibleTo(requester))
		}
		return nil
	})
	return list, err
}

// PostMessage appends a chat line. Only the creator and assignee may talk.
func (e *Engine) PostMessage(ctx context.Context, questID uuid.UUID, sender, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.E(models.ErrValidation, "message text is required")
	}
	msg := &models.Message{ID: uuid.New(), QuestID: questID, Sender: sender, Text: text, CreatedAt: e.now()}
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := e.requireParty(ctx, tx, questID, sender); err != nil {
			return err
		}
		return tx.Messages().Append(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the quest's chat, oldest first, to one of its parties.
func (e *Engine) ListMessages(ctx context.Context, questID uuid.UUID, requester string) ([]*models.Message, error) {
	var list []*models.Message
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := e.requireParty(ctx, tx, questID, requester); err != nil {
			return err
		}
		var err error
		list, err = tx.Messages().ListByQuest(ctx, questID)
		return err
	})
	return list, err
}

func (e *Engine) requireParty(ctx context.Context, tx store.Tx, questID uuid.UUID, who string) error {
	q, err := tx.Quests().Get(ctx, questID)
	if err != nil {
		return explain(err, models.ErrNotFound, "quest not found")
	}
	if who == "" || (who != q.CreatedBy && who != q.Assignee()) {
		return models.E(models.ErrForbidden, "only the quest's creator and hero can chat")
	}
	return nil
}

func (e *Engine) observe(op string, err error) {
	e.metrics.Observe(op, models.Kind(err))
	if err != nil && models.Kind(err) == "internal" {
		e.logger.Error("escrow operation failed", "op", op, "error", err)
	}
}

func hasBid(bids []models.Bid, hero string, amount int64) bool {
	for _, b := range bids {
		if b.Bidder == hero && b.AmountCents == amount {
			return true
		}
	}
	return false
}

// questErr gives store CAS failures a caller-facing message.
func questErr(err error, conflictMsg string) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.E(models.ErrNotFound, "quest not found")
	case errors.Is(err, models.ErrConflict):
		return models.E(models.ErrConflict, "%s", conflictMsg)
	}
	return err
}

// explain replaces a bare sentinel of the given kind with a message.
func explain(err, kind error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var typed *models.Error
	if errors.Is(err, kind) && !errors.As(err, &typed) {
		return models.E(kind, format, args...)
	}
	return err
}

// FormatCents renders minor units as a decimal amount.
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
