package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry directions and outcome.
const (
	TxCredit = "credit"
	TxDebit  = "debit"

	TxStatusSuccess = "success"
)

// Transaction is one append-only ledger entry. Every balance mutation writes exactly one.
type Transaction struct {
	ID                uuid.UUID  `json:"id"`
	Owner             string     `json:"owner"`
	QuestID           *uuid.UUID `json:"quest_id,omitempty"`
	Direction         string     `json:"type"`
	Description       string     `json:"description"`
	AmountCents       int64      `json:"amount_cents"`
	BalanceAfterCents int64      `json:"balance_after_cents"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
}

// SignedAmount is the balance delta the entry represents for its owner.
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == TxDebit {
		return -t.AmountCents
	}
	return t.AmountCents
}
