// Package disputes freezes contested quests and settles them by admin
// decision. Settlement money moves in the same unit of work as the
// disputed -> resolved transition, so a retried resolution finds the quest
// already resolved and moves nothing.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/metrics"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/notify"
	"github.com/campusquest/backend/internal/store"
)

// Admin comments recorded per resolution.
var resolutionComments = map[string]string{
	models.ResolutionRefundPoster: "Refunded to Task Master",
	models.ResolutionPayHero:      "Funds released to Hero",
	models.ResolutionSplit:        "50/50 Split",
}

type Options struct {
	// AdminHandles restricts who may resolve. Empty allows any caller.
	AdminHandles []string
	AdminEmail   string
	Notifier     notify.Notifier
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Now          func() time.Time
}

type Resolver struct {
	store      store.Store
	ledger     *ledger.Service
	admins     map[string]bool
	adminEmail string
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewResolver(st store.Store, led *ledger.Service, opts Options) *Resolver {
	r := &Resolver{
		store:      st,
		ledger:     led,
		admins:     make(map[string]bool, len(opts.AdminHandles)),
		adminEmail: opts.AdminEmail,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	for _, h := range opts.AdminHandles {
		if h = strings.TrimSpace(h); h != "" {
			r.admins[h] = true
		}
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// RaiseDispute freezes an active or completed quest. Either party may raise.
func (r *Resolver) RaiseDispute(ctx context.Context, questID uuid.UUID, raiser, reason string) (*models.Quest, error) {
	reason = strings.TrimSpace(reason)
	if raiser == "" {
		return nil, models.E(models.ErrValidation, "raiser is required")
	}
	if reason == "" {
		return nil, models.E(models.ErrValidation, "reason is required")
	}
	var (
		quest      *models.Quest
		recipients []string
	)
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		now := r.now()
		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{
				Statuses: []string{models.QuestStatusActive, models.QuestStatusCompleted},
				PartyOf:  raiser,
			},
			store.QuestChange{
				Status:      models.QuestStatusDisputed,
				OpenDispute: &models.Dispute{RaisedBy: raiser, Reason: reason, CreatedAt: now},
				At:          now,
			})
		switch {
		case errors.Is(err, models.ErrNotFound):
			return models.E(models.ErrNotFound, "quest not found")
		case errors.Is(err, models.ErrConflict):
			return models.E(models.ErrConflict, "only an active or completed quest you are part of can be disputed")
		case err != nil:
			return err
		}
		quest = q
		recipients = r.addresses(ctx, tx, q.CreatedBy, q.Assignee())
		return nil
	})
	r.metrics.Observe("raise_dispute", models.Kind(err))
	if err != nil {
		return nil, err
	}
	r.logger.Info("dispute raised", "quest_id", questID, "raised_by", raiser, "previous_status", quest.Dispute.PreviousStatus)

	msg := notify.Message{
		Kind:    notify.KindDisputeRaised,
		To:      recipients,
		Subject: "Dispute raised: " + quest.Title,
		Body: fmt.Sprintf("%s opened a dispute on %q.\n\nReason: %s\n\nFunds are frozen until an admin resolves it. Reply to this message to add details.",
			raiser, quest.Title, reason),
	}
	if r.adminEmail != "" {
		msg.CC = []string{r.adminEmail}
		msg.ReplyTo = r.adminEmail
	}
	r.notifier.Notify(ctx, msg)
	return quest, nil
}

// addresses resolves each party to an email, falling back to the handle.
func (r *Resolver) addresses(ctx context.Context, tx store.Tx, handles ...string) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		if h == "" {
			continue
		}
		if a, err := tx.Accounts().Get(ctx, h); err == nil && a.Email != "" {
			out = append(out, a.Email)
			continue
		}
		out = append(out, h)
	}
	return out
}

// ListDisputes returns quests currently under dispute, most recently raised first.
func (r *Resolver) ListDisputes(ctx context.Context) ([]*models.Quest, error) {
	var list []*models.Quest
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		all, err := tx.Quests().List(ctx, store.QuestFilter{Statuses: []string{models.QuestStatusDisputed}})
		if err != nil {
			return err
		}
		list = make([]*models.Quest, 0, len(all))
		for _, q := range all {
			list = append(list, q.VisibleTo(""))
		}
		sort.SliceStable(list, func(i, j int) bool {
			return raisedAt(list[i]).After(raisedAt(list[j]))
		})
		return nil
	})
	return list, err
}

func raisedAt(q *models.Quest) time.Time {
	if q.Dispute == nil {
		return time.Time{}
	}
	return q.Dispute.CreatedAt
}

// ResolveDispute applies an admin decision. Whether the hero had already been
// paid is read from the dispute's previous status.
func (r *Resolver) ResolveDispute(ctx context.Context, questID uuid.UUID, resolution, admin string) (*models.Quest, error) {
	if !models.ValidResolution(resolution) {
		return nil, models.E(models.ErrValidation, "resolution must be refund_poster, pay_hero or split")
	}
	if admin == "" {
		return nil, models.E(models.ErrValidation, "admin is required")
	}
	if len(r.admins) > 0 && !r.admins[admin] {
		return nil, models.E(models.ErrForbidden, "%s may not resolve disputes", admin)
	}

	var quest *models.Quest
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		current, err := tx.Quests().Get(ctx, questID)
		if errors.Is(err, models.ErrNotFound) {
			return models.E(models.ErrNotFound, "quest not found")
		}
		if err != nil {
			return err
		}
		if current.Status != models.QuestStatusDisputed || current.Dispute == nil {
			return models.E(models.ErrConflict, "quest is not under dispute")
		}
		creator, hero := current.CreatedBy, current.Assignee()
		if hero == "" {
			return models.E(models.ErrNotFound, "disputed quest has no hero")
		}
		if err := lockAccounts(ctx, tx, creator, hero); err != nil {
			return err
		}

		q, err := tx.Quests().Transition(ctx, questID,
			store.QuestGuard{Statuses: []string{models.QuestStatusDisputed}},
			store.QuestChange{
				Status: models.QuestStatusResolved,
				ResolveDispute: &store.DisputeResolution{
					Resolution:   resolution,
					AdminComment: resolutionComments[resolution],
					ResolvedBy:   admin,
				},
				At: r.now(),
			})
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				return models.E(models.ErrConflict, "quest is not under dispute")
			}
			return err
		}
		if err := r.settle(ctx, tx, q, resolution, current.Dispute.WasPaid()); err != nil {
			return err
		}
		quest = q
		return nil
	})
	r.metrics.Observe("resolve_dispute", models.Kind(err))
	if err != nil {
		return nil, err
	}
	r.metrics.Resolved(resolution)
	r.logger.Info("dispute resolved", "quest_id", questID, "resolution", resolution, "resolved_by", admin)
	return quest.VisibleTo(""), nil
}

// lockAccounts locks both parties in a fixed order.
func lockAccounts(ctx context.Context, tx store.Tx, handles ...string) error {
	sorted := append([]string(nil), handles...)
	sort.Strings(sorted)
	for _, h := range sorted {
		if _, err := tx.Accounts().GetForUpdate(ctx, h); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.E(models.ErrNotFound, "user %s not found", h)
			}
			return err
		}
	}
	return nil
}

// Split returns the creator's and hero's halves of reward. The creator gets
// the odd cent, matching round-half-up of reward/2.
func Split(reward int64) (creatorShare, heroShare int64) {
	creatorShare = (reward + 1) / 2
	return creatorShare, reward - creatorShare
}

func (r *Resolver) settle(ctx context.Context, tx store.Tx, q *models.Quest, resolution string, paid bool) error {
	creator, hero := q.CreatedBy, q.Assignee()
	id := &q.ID
	desc := func(label string) string { return ledger.Describe(label, q.Title) }

	switch resolution {
	case models.ResolutionRefundPoster:
		if paid {
			if _, err := r.ledger.Debit(ctx, tx, hero, id, desc(ledger.LabelDisputeClawback), q.RewardCents); err != nil {
				return clawbackErr(err)
			}
			if _, err := tx.Accounts().AddXP(ctx, hero, -q.XP); err != nil {
				return err
			}
		}
		_, err := r.ledger.Credit(ctx, tx, creator, id, desc(ledger.LabelDisputeRefund), q.RewardCents)
		return err

	case models.ResolutionPayHero:
		if paid {
			return nil
		}
		if _, err := r.ledger.Credit(ctx, tx, hero, id, desc(ledger.LabelDisputeSettle), q.RewardCents); err != nil {
			return err
		}
		_, err := tx.Accounts().AddXP(ctx, hero, q.XP)
		return err

	case models.ResolutionSplit:
		creatorShare, heroShare := Split(q.RewardCents)
		if paid {
			if _, err := r.ledger.Debit(ctx, tx, hero, id, desc(ledger.LabelSplitReturn), creatorShare); err != nil {
				return clawbackErr(err)
			}
			_, err := r.ledger.Credit(ctx, tx, creator, id, desc(ledger.LabelSplitRefund), creatorShare)
			return err
		}
		if _, err := r.ledger.Credit(ctx, tx, creator, id, desc(ledger.LabelSplit), creatorShare); err != nil {
			return err
		}
		if heroShare == 0 {
			return nil
		}
		_, err := r.ledger.Credit(ctx, tx, hero, id, desc(ledger.LabelSplit), heroShare)
		return err
	}
	return models.E(models.ErrValidation, "unknown resolution %q", resolution)
}

func clawbackErr(err error) error {
	if errors.Is(err, models.ErrInsufficientFunds) {
		return models.E(models.ErrInsufficientFunds, "hero balance cannot cover the clawback")
	}
	return err
}
