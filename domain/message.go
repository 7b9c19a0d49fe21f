package domain

import (
	"chat-sync/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tombstone replaces the content of a deleted message.
const Tombstone = "this message was deleted"

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo reports whether moving from s to next goes strictly forward.
// sent -> delivered -> read, and sent -> read for clients skipping the delivered step.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() > s.rank()
}

// Message is the system-of-record shape of a chat message.
// It is never physically removed, only tombstoned.
type Message struct {
	ID          uuid.UUID `json:"id"`
	ChatID      ChatID    `json:"chatId"`
	SenderID    UserID    `json:"senderId"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
	Status      Status    `json:"status"`
	IsDeleted   bool      `json:"isDeleted"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewMessage builds a provisional message with a fresh id and status sent.
func NewMessage(chatID ChatID, senderID UserID, content string, attachments []string, now time.Time) Message {
	if attachments == nil {
		attachments = []string{}
	}
	return Message{
		ID:          uuid.New(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		Attachments: attachments,
		Status:      StatusSent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Advance moves the status forward. It returns false and leaves the message
// untouched when next would not be a forward transition.
func (m *Message) Advance(next Status, at time.Time) bool {
	if !m.Status.CanAdvanceTo(next) {
		return false
	}
	m.Status = next
	m.UpdatedAt = at
	return true
}

func (m *Message) Edit(content string, at time.Time) {
	m.Content = content
	m.UpdatedAt = at
}

// Delete soft-deletes the message: content becomes the Tombstone and attachments are dropped.
func (m *Message) Delete(at time.Time) {
	m.IsDeleted = true
	m.Content = Tombstone
	m.Attachments = []string{}
	m.UpdatedAt = at
}

// ParseMessageID rejects anything that is not a canonical uuid.
func ParseMessageID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w %q", errors.ErrMalformedMessageID, raw)
	}
	return id, nil
}
