// Package runtime routes client events to the in-memory connection state and
// to storage: connection registry, presence, typing, fan-out and the message lifecycle.
package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/repositories"
	"chat-sync/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultMaxContentLength bounds message content, in runes.
const DefaultMaxContentLength = 4096

// Origin identifies who issued a command and where failures are reported.
type Origin struct {
	UserID domain.UserID
	Conn   contract.Connection
}

// Engine applies message mutations. Mutations of one message are serialized
// by a per-message lock; storage is read and written under that lock only.
type Engine struct {
	log              *slog.Logger
	repository       repositories.IMessageRepository
	membership       repositories.IMembershipRepository
	fanout           contract.IFanout
	moderator        contract.Moderator
	locks            *KeyedMutex[uuid.UUID]
	// persistMu guards persist: Send enqueues under the read lock, Close
	// closes the channel under the write lock, so no job lands after close.
	persistMu        sync.RWMutex
	persist          chan<- workers.PersistJob
	persistClosed    bool
	validate         *validator.Validate
	maxContentLength int
	now              func() time.Time
}

func NewEngine(
	log *slog.Logger,
	repository repositories.IMessageRepository,
	membership repositories.IMembershipRepository,
	fanout contract.IFanout,
	moderator contract.Moderator,
	locks *KeyedMutex[uuid.UUID],
	persist chan<- workers.PersistJob,
	maxContentLength int) *Engine {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	return &Engine{
		log:              log,
		repository:       repository,
		membership:       membership,
		fanout:           fanout,
		moderator:        moderator,
		locks:            locks,
		persist:          persist,
		validate:         validator.New(),
		maxContentLength: maxContentLength,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Send creates a message, broadcasts it right away and hands it to the
// persistence workers. A later persistence failure is reported to the origin
// connection only; members already saw the message.
func (e *Engine) Send(ctx context.Context, origin Origin, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := e.validate.Struct(cmd); err != nil {
		return domain.Message{}, errors.Validation(err)
	}
	if err := e.checkLength(cmd.Content); err != nil {
		return domain.Message{}, err
	}
	e.persistMu.RLock()
	defer e.persistMu.RUnlock()
	if e.persistClosed {
		return domain.Message{}, errors.ErrShuttingDown
	}

	message := domain.NewMessage(cmd.ChatID, origin.UserID, e.censor(cmd.Content), cmd.Attachments, e.now())
	e.remember(cmd.ChatID, append(domain.Set(cmd.Members...), origin.UserID))

	e.fanout.Emit(ctx, cmd.Members, domain.NewMessageEvent, domain.NewMessagePayload{ChatID: cmd.ChatID, Message: message})
	e.fanout.Emit(ctx, cmd.Members, domain.NewMessageAlertEvent, domain.NewMessageAlert{ChatID: cmd.ChatID})

	job := workers.PersistJob{
		Message: message,
		Done: func(err error) {
			if err != nil {
				e.fail(context.Background(), origin, domain.SendMessageKind, message.ID.String(), err)
			}
		},
	}
	select {
	case e.persist <- job:
	default:
		e.log.Error("Persistence queue is full", "message_id", message.ID, "chat_id", message.ChatID)
		e.fail(ctx, origin, domain.SendMessageKind, message.ID.String(), errors.ErrPersistQueueFull)
	}
	return message, nil
}

// Close stops accepting new messages and closes the persistence queue so the
// workers can drain it and return. Sends after Close fail with ErrShuttingDown
// before anything is broadcast.
func (e *Engine) Close() {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if e.persistClosed {
		return
	}
	e.persistClosed = true
	if e.persist != nil {
		close(e.persist)
	}
}

// MarkDelivered advances the message to delivered. Already delivered or read is a no-op.
func (e *Engine) MarkDelivered(ctx context.Context, cmd domain.ReceiptCommand) error {
	return e.advance(ctx, cmd, domain.StatusDelivered, domain.MessageDeliveredEvent)
}

// MarkRead advances the message to read. Already read is a no-op.
func (e *Engine) MarkRead(ctx context.Context, cmd domain.ReceiptCommand) error {
	return e.advance(ctx, cmd, domain.StatusRead, domain.MessageReadEvent)
}

func (e *Engine) advance(ctx context.Context, cmd domain.ReceiptCommand, to domain.Status, kind domain.EventKind) error {
	if err := e.validate.Struct(cmd); err != nil {
		return errors.Validation(err)
	}
	id, err := domain.ParseMessageID(cmd.MessageID)
	if err != nil {
		return err
	}
	unlock := e.locks.Lock(id)
	defer unlock()

	message, err := e.find(id)
	if err != nil {
		return err
	}
	if !message.Advance(to, e.now()) {
		e.log.Debug("Status unchanged", "message_id", id, "status", message.Status, "requested", to)
		return nil
	}
	if err := e.repository.Update(*message); err != nil {
		return errors.Persistence("update status", err)
	}
	e.fanout.Emit(ctx, e.participants(*message), kind, domain.StatusChanged{MessageID: id, Status: to})
	return nil
}

// Edit replaces the content of a live message.
func (e *Engine) Edit(ctx context.Context, cmd domain.EditMessageCommand) error {
	if err := e.validate.Struct(cmd); err != nil {
		return errors.Validation(err)
	}
	id, err := domain.ParseMessageID(cmd.MessageID)
	if err != nil {
		return err
	}
	if err := e.checkLength(cmd.NewContent); err != nil {
		return err
	}
	unlock := e.locks.Lock(id)
	defer unlock()

	message, err := e.find(id)
	if err != nil {
		return err
	}
	if message.IsDeleted {
		return fmt.Errorf("%w %s", errors.ErrMessageDeleted, id)
	}
	content := e.censor(cmd.NewContent)
	message.Edit(content, e.now())
	if err := e.repository.Update(*message); err != nil {
		return errors.Persistence("edit", err)
	}
	e.remember(message.ChatID, cmd.Members)
	e.fanout.Emit(ctx, cmd.Members, domain.MessageEditedEvent, domain.MessageEdited{MessageID: id, NewContent: content})
	return nil
}

// Delete turns a live message into a tombstone.
func (e *Engine) Delete(ctx context.Context, cmd domain.DeleteMessageCommand) error {
	if err := e.validate.Struct(cmd); err != nil {
		return errors.Validation(err)
	}
	id, err := domain.ParseMessageID(cmd.MessageID)
	if err != nil {
		return err
	}
	unlock := e.locks.Lock(id)
	defer unlock()

	message, err := e.find(id)
	if err != nil {
		return err
	}
	if message.IsDeleted {
		return fmt.Errorf("%w %s", errors.ErrMessageDeleted, id)
	}
	if message.ChatID != cmd.ChatID {
		return errors.Validation(fmt.Errorf("message %s does not belong to chat %s", id, cmd.ChatID))
	}
	message.Delete(e.now())
	if err := e.repository.Update(*message); err != nil {
		return errors.Persistence("delete", err)
	}
	e.remember(message.ChatID, cmd.Members)
	e.fanout.Emit(ctx, cmd.Members, domain.MessageDeletedEvent, domain.MessageDeleted{
		MessageID: id,
		ChatID:    message.ChatID,
		Members:   cmd.Members,
	})
	return nil
}

// History returns one page of a chat, newest first. Only members of the chat,
// as known to the membership read model, may read it.
func (e *Engine) History(userID domain.UserID, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	members, err := e.membership.MembersOf(chatID)
	if err != nil {
		return nil, nil, errors.Persistence("members", err)
	}
	if !slices.Contains(members, userID) {
		return nil, nil, fmt.Errorf("%w: %s in %s", errors.ErrNotChatMember, userID, chatID)
	}
	messages, next, err := e.repository.ListByChat(chatID, cursor)
	if err != nil {
		return nil, nil, errors.Persistence("list", err)
	}
	return messages, next, nil
}

// Reject reports a failed command back to the connection that issued it.
func (e *Engine) Reject(ctx context.Context, origin Origin, operation domain.InboundKind, messageID string, err error) {
	e.fail(ctx, origin, operation, messageID, err)
}

func (e *Engine) find(id uuid.UUID) (*domain.Message, error) {
	message, err := e.repository.FindByID(id)
	if err != nil {
		return nil, errors.Persistence("find", err)
	}
	if message == nil {
		return nil, fmt.Errorf("%w %s", errors.ErrMessageNotFound, id)
	}
	return message, nil
}

// participants are the chat members known to the read model plus the sender.
func (e *Engine) participants(message domain.Message) []domain.UserID {
	members, err := e.membership.MembersOf(message.ChatID)
	if err != nil {
		e.log.Warn("Chat members unresolved", "chat_id", message.ChatID, "error", err)
	}
	return domain.Set(append(members, message.SenderID)...)
}

func (e *Engine) remember(chatID domain.ChatID, members []domain.UserID) {
	if err := e.membership.Remember(chatID, domain.Set(members...)); err != nil {
		e.log.Warn("Membership not recorded", "chat_id", chatID, "error", err)
	}
}

func (e *Engine) censor(content string) string {
	if e.moderator == nil || content == "" {
		return content
	}
	return e.moderator.Censor(content)
}

func (e *Engine) checkLength(content string) error {
	if n := utf8.RuneCountInString(content); n > e.maxContentLength {
		return fmt.Errorf("%w: %d > %d", errors.ErrContentTooLong, n, e.maxContentLength)
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, origin Origin, operation domain.InboundKind, messageID string, err error) {
	e.log.Warn("Operation failed", "operation", operation, "user_id", origin.UserID, "message_id", messageID, "error", err)
	payload := domain.OperationFailed{
		Operation: operation,
		MessageID: messageID,
		Code:      errors.Code(err),
		Reason:    err.Error(),
	}
	if replyErr := e.fanout.Reply(ctx, origin.Conn, domain.OperationFailedEvent, payload); replyErr != nil {
		e.log.Debug("Failure not reported", "user_id", origin.UserID, "error", replyErr)
	}
}
