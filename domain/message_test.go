package domain

import (
	"chat-sync/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMessage_Status_Only_Moves_Forward(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name     string
		from     Status
		to       Status
		advanced bool
	}{
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"sent to read", StatusSent, StatusRead, true},
		{"delivered to read", StatusDelivered, StatusRead, true},
		{"delivered to sent", StatusDelivered, StatusSent, false},
		{"read to delivered", StatusRead, StatusDelivered, false},
		{"read to sent", StatusRead, StatusSent, false},
		{"delivered to delivered", StatusDelivered, StatusDelivered, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			message := NewMessage("C42", "A", "hi", nil, now)
			message.Status = tt.from

			advanced := message.Advance(tt.to, now.Add(time.Second))

			req.Equal(tt.advanced, advanced)
			if tt.advanced {
				req.Equal(tt.to, message.Status)
				req.Equal(now.Add(time.Second), message.UpdatedAt)
			} else {
				req.Equal(tt.from, message.Status)
				req.Equal(now, message.UpdatedAt)
			}
		})
	}
}

func TestMessage_Delete_Tombstones_Content_And_Attachments(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	// Given a message with content and attachments
	message := NewMessage("C42", "A", "secret plans", []string{"cdn://a.png", "cdn://b.pdf"}, now)

	// When it is deleted
	message.Delete(now.Add(time.Minute))

	// Then only the tombstone remains
	req.True(message.IsDeleted)
	req.Equal(Tombstone, message.Content)
	req.Empty(message.Attachments)
	req.NotNil(message.Attachments)
	req.Equal(now, message.CreatedAt)
	req.Equal(now.Add(time.Minute), message.UpdatedAt)
}

func TestNewMessage(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	message := NewMessage("C42", "A", "hi", nil, now)

	req.NotEqual(uuid.Nil, message.ID)
	req.Equal(StatusSent, message.Status)
	req.False(message.IsDeleted)
	req.Equal(now, message.CreatedAt)
	req.NotNil(message.Attachments)
}

func TestParseMessageID(t *testing.T) {
	req := require.New(t)

	id := uuid.New()
	parsed, err := ParseMessageID(id.String())
	req.NoError(err)
	req.Equal(id, parsed)

	for _, raw := range []string{"", "42", "not-a-uuid", uuid.Nil.String()} {
		_, err = ParseMessageID(raw)
		req.ErrorIs(err, errors.ErrMalformedMessageID)
		req.ErrorIs(err, errors.ErrValidation)
	}
}

func TestSet(t *testing.T) {
	req := require.New(t)

	req.Equal([]UserID{"A", "B", "C"}, Set("C", "A", "", "B", "A"))
	req.Empty(Set())
}
