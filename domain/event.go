package domain

import "github.com/google/uuid"

// EventKind names an outbound realtime event.
type EventKind string

const (
	NewMessageEvent       EventKind = "new-message"
	NewMessageAlertEvent  EventKind = "new-message-alert"
	StartTypingEvent      EventKind = "start-typing"
	StopTypingEvent       EventKind = "stop-typing"
	OnlineUsersEvent      EventKind = "online-users"
	MessageDeliveredEvent EventKind = "message-delivered"
	MessageReadEvent      EventKind = "message-read"
	MessageEditedEvent    EventKind = "message-edited"
	MessageDeletedEvent   EventKind = "message-deleted"
	OperationFailedEvent  EventKind = "operation-failed"
)

// Envelope is the unit written to a connection.
type Envelope struct {
	Kind    EventKind `json:"event"`
	Payload any       `json:"data"`
}

type NewMessagePayload struct {
	ChatID  ChatID  `json:"chatId"`
	Message Message `json:"message"`
}

type NewMessageAlert struct {
	ChatID ChatID `json:"chatId"`
}

type Typing struct {
	ChatID ChatID `json:"chatId"`
	UserID UserID `json:"userId"`
}

type StatusChanged struct {
	MessageID uuid.UUID `json:"messageId"`
	Status    Status    `json:"status"`
}

type MessageEdited struct {
	MessageID  uuid.UUID `json:"messageId"`
	NewContent string    `json:"newContent"`
}

type MessageDeleted struct {
	MessageID uuid.UUID `json:"messageId"`
	ChatID    ChatID    `json:"chatId"`
	Members   []UserID  `json:"members"`
}

// OperationFailed is sent back to the connection that issued a command which
// was rejected or could not be persisted.
type OperationFailed struct {
	Operation InboundKind `json:"operation"`
	MessageID string      `json:"messageId,omitempty"`
	Code      string      `json:"code"`
	Reason    string      `json:"reason"`
}
