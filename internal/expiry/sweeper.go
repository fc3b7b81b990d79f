// Package expiry force-expires quests whose deadline has passed and refunds
// the escrow to their creator. Each quest is its own unit of work, so one
// failure never stops the rest of a sweep.
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/metrics"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

var sweepable = []string{models.QuestStatusOpen, models.QuestStatusActive}

type Sweeper struct {
	store   store.Store
	ledger  *ledger.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewSweeper(st store.Store, led *ledger.Service, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{store: st, ledger: led, metrics: m, logger: logger, now: now}
}

// Result summarizes one sweep.
type Result struct {
	Due      int `json:"due"`
	Expired  int `json:"expired"`
	Refunded int `json:"refunded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Sweep expires every open or active quest whose deadline is before now.
// The returned error is set only when the due list could not be read.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.now()
	var due []*models.Quest
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		due, err = tx.Quests().List(ctx, store.QuestFilter{Statuses: sweepable, DeadlineBefore: &now})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Due: len(due)}
	for _, q := range due {
		if ctx.Err() != nil {
			break
		}
		refunded, err := s.expire(ctx, q, now)
		switch {
		case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrNotFound):
			// accepted, completed or cancelled since the list was read
			res.Skipped++
		case err != nil:
			res.Failed++
			s.logger.Error("expire quest failed", "quest_id", q.ID, "error", err)
		default:
			res.Expired++
			if refunded {
				res.Refunded++
			}
		}
	}
	s.metrics.Expired(res.Expired)
	if res.Due > 0 {
		s.logger.Info("expiry sweep finished", "due", res.Due, "expired", res.Expired, "refunded", res.Refunded, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

// expire moves one quest to expired and refunds its creator if they still exist.
func (s *Sweeper) expire(ctx context.Context, q *models.Quest, now time.Time) (bool, error) {
	refunded := false
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		expired, err := tx.Quests().Transition(ctx, q.ID,
			store.QuestGuard{Statuses: sweepable},
			store.QuestChange{Status: models.QuestStatusExpired, At: now})
		if err != nil {
			return err
		}
		if _, err := tx.Accounts().Get(ctx, expired.CreatedBy); errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("expired quest has no creator account; escrow not refunded", "quest_id", q.ID, "creator", expired.CreatedBy)
			return nil
		} else if err != nil {
			return err
		}
		_, err = s.ledger.Credit(ctx, tx, expired.CreatedBy, &expired.ID,
			ledger.Describe(ledger.LabelRefundExpired, expired.Title), expired.RewardCents)
		refunded = err == nil
		return err
	})
	return refunded, err
}
