package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one chat line in a quest's conversation. Quest ID is the partition key.
type Message struct {
	ID        uuid.UUID `json:"id"`
	QuestID   uuid.UUID `json:"quest_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
