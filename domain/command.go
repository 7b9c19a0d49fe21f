package domain

import "encoding/json"

// InboundKind names an event received from a client connection.
type InboundKind string

const (
	SendMessageKind   InboundKind = "send-message"
	StartTypingKind   InboundKind = "start-typing"
	StopTypingKind    InboundKind = "stop-typing"
	JoinChatKind      InboundKind = "join-chat"
	LeaveChatKind     InboundKind = "leave-chat"
	MarkDeliveredKind InboundKind = "mark-delivered"
	MarkReadKind      InboundKind = "mark-read"
	EditMessageKind   InboundKind = "edit-message"
	DeleteMessageKind InboundKind = "delete-message"
)

// Inbound is a raw client frame; Data is decoded by the handler bound to Kind.
type Inbound struct {
	Kind InboundKind     `json:"event"`
	Data json.RawMessage `json:"data"`
}

type SendMessageCommand struct {
	ChatID      ChatID   `json:"chatId" validate:"required,max=128"`
	Members     []UserID `json:"members" validate:"required,min=1,dive,required"`
	Content     string   `json:"content" validate:"required_without=Attachments"`
	Attachments []string `json:"attachments" validate:"omitempty,dive,required"`
}

type TypingCommand struct {
	ChatID  ChatID   `json:"chatId" validate:"required,max=128"`
	Members []UserID `json:"members" validate:"required,min=1,dive,required"`
}

// ChatPresenceCommand carries join-chat and leave-chat.
type ChatPresenceCommand struct {
	UserID  UserID   `json:"userId" validate:"required"`
	Members []UserID `json:"members" validate:"required,min=1,dive,required"`
}

// ReceiptCommand carries mark-delivered and mark-read.
type ReceiptCommand struct {
	MessageID string `json:"messageId" validate:"required"`
}

type EditMessageCommand struct {
	MessageID  string   `json:"messageId" validate:"required"`
	NewContent string   `json:"newContent" validate:"required"`
	Members    []UserID `json:"members" validate:"required,min=1,dive,required"`
}

type DeleteMessageCommand struct {
	MessageID string   `json:"messageId" validate:"required"`
	ChatID    ChatID   `json:"chatId" validate:"required,max=128"`
	Members   []UserID `json:"members" validate:"required,min=1,dive,required"`
}
