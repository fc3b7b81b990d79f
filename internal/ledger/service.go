// Package ledger pairs every balance mutation with exactly one append-only
// transaction record. Callers pass the store.Tx of their unit of work so the
// balance change, the record and the quest transition commit together.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campusquest/backend/internal/metrics"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

// Entry labels. Descriptions are rendered as "<label>: <quest title>".
const (
	LabelEscrow          = "Escrow"
	LabelEscrowTopUp     = "Escrow Top-up"
	LabelRefundSavedBid  = "Refund: saved on bid"
	LabelReward          = "Reward"
	LabelRefundCancelled = "Refund: cancelled"
	LabelRefundExpired   = "Refund: expired"
	LabelDisputeClawback = "Dispute Clawback"
	LabelDisputeRefund   = "Dispute Refund"
	LabelDisputeSettle   = "Dispute Settlement"
	LabelSplitReturn     = "Dispute Split (Return)"
	LabelSplitRefund     = "Dispute Split (Refund)"
	LabelSplit           = "Dispute Split"
)

// Describe renders a ledger description for a quest.
func Describe(label, title string) string {
	return label + ": " + title
}

type Service struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewService(now func() time.Time, m *metrics.Metrics) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{now: now, metrics: m}
}

// Credit adds amount to owner's balance and appends the matching credit entry.
func (s *Service) Credit(ctx context.Context, tx store.Tx, owner string, questID *uuid.UUID, description string, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", models.ErrValidation)
	}
	balance, err := tx.Accounts().AddBalance(ctx, owner, amount)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, tx, owner, questID, models.TxCredit, description, amount, balance)
}

// Debit removes amount from owner's balance, failing with
// models.ErrInsufficientFunds rather than going negative.
func (s *Service) Debit(ctx context.Context, tx store.Tx, owner string, questID *uuid.UUID, description string, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit amount must be positive", models.ErrValidation)
	}
	balance, err := tx.Accounts().DeductBalance(ctx, owner, amount)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, tx, owner, questID, models.TxDebit, description, amount, balance)
}

func (s *Service) record(ctx context.Context, tx store.Tx, owner string, questID *uuid.UUID, direction, description string, amount, balance int64) (*models.Transaction, error) {
	entry := &models.Transaction{
		ID:                uuid.New(),
		Owner:             owner,
		QuestID:           questID,
		Direction:         direction,
		Description:       description,
		AmountCents:       amount,
		BalanceAfterCents: balance,
		Status:            models.TxStatusSuccess,
		CreatedAt:         s.now(),
	}
	if err := tx.Ledger().Append(ctx, entry); err != nil {
		return nil, err
	}
	s.metrics.Moved(direction, amount)
	return entry, nil
}

// History returns owner's entries newest first.
func (s *Service) History(ctx context.Context, st store.Store, owner string) ([]*models.Transaction, error) {
	var list []*models.Transaction
	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Accounts().Get(ctx, owner); err != nil {
			return err
		}
		var err error
		list, err = tx.Ledger().ListByOwner(ctx, owner)
		return err
	})
	return list, err
}
