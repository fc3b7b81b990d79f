// Package notify delivers best-effort messages about quests: dispute mail to
// the parties and push broadcasts for new quests. Delivery never fails the
// operation that triggered it.
package notify

import (
	"context"
	"errors"
)

// Message kinds.
const (
	KindDisputeRaised = "dispute_raised"
	KindQuestPosted   = "quest_posted"
)

type Message struct {
	Kind    string   `json:"kind"`
	To      []string `json:"to,omitempty"`
	CC      []string `json:"cc,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	// Broadcast messages go to every subscribed device instead of To.
	Broadcast bool `json:"broadcast,omitempty"`
}

// Dispatcher performs one delivery attempt.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Notifier hands a message off for delivery without waiting for it.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Dispatch(context.Context, Message) error { return nil }
func (Nop) Notify(context.Context, Message)         {}

// Mux sends a message through every dispatcher and joins the failures.
type Mux []Dispatcher

func (m Mux) Dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
