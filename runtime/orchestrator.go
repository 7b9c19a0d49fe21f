package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/repositories"
	"chat-sync/runtime/workers"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Settings tunes the orchestrator; zero values fall back to defaults.
type Settings struct {
	NumWorkers        int
	PersistBufferSize int
	TypingTimeout     time.Duration
	PresenceScope     PresenceScope
	MaxContentLength  int
}

// handlerFunc decodes and applies one inbound event. The returned id, if any,
// is echoed in the operation-failed event.
type handlerFunc func(ctx context.Context, origin Origin, data json.RawMessage) (string, error)

// Orchestrator is the single entry point of the transport: connections come
// and go through it and every inbound frame is dispatched by it.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	numWorkers int
	supervisor contract.ISupervisor
	registry   *Registry
	presence   *Presence
	typing     *Typing
	engine     *Engine
	locks      *KeyedMutex[uuid.UUID]
	messages   repositories.IMessageRepository
	persist    chan workers.PersistJob
	extra      []contract.Worker
	handlers   map[domain.InboundKind]handlerFunc
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry *Registry,
	messages repositories.IMessageRepository, membership repositories.IMembershipRepository,
	moderator contract.Moderator, settings Settings) *Orchestrator {
	if settings.NumWorkers <= 0 {
		settings.NumWorkers = 1
	}
	if settings.PersistBufferSize <= 0 {
		settings.PersistBufferSize = 1
	}
	fanout := NewFanout(log, registry)
	locks := NewKeyedMutex[uuid.UUID]()
	persist := make(chan workers.PersistJob, settings.PersistBufferSize)

	o := &Orchestrator{
		log:        log,
		numWorkers: settings.NumWorkers,
		supervisor: supervisor,
		registry:   registry,
		presence:   NewPresence(log, registry, fanout, membership, settings.PresenceScope),
		typing:     NewTyping(log, fanout, settings.TypingTimeout),
		engine:     NewEngine(log, messages, membership, fanout, moderator, locks, persist, settings.MaxContentLength),
		locks:      locks,
		messages:   messages,
		persist:    persist,
	}
	o.handlers = map[domain.InboundKind]handlerFunc{
		domain.SendMessageKind:   o.handleSendMessage,
		domain.StartTypingKind:   o.handleStartTyping,
		domain.StopTypingKind:    o.handleStopTyping,
		domain.JoinChatKind:      o.handleChatPresence,
		domain.LeaveChatKind:     o.handleChatPresence,
		domain.MarkDeliveredKind: o.handleReceipt(o.engine.MarkDelivered),
		domain.MarkReadKind:      o.handleReceipt(o.engine.MarkRead),
		domain.EditMessageKind:   o.handleEditMessage,
		domain.DeleteMessageKind: o.handleDeleteMessage,
	}
	return o
}

// Add registers extra background workers, started along with the persistence pool.
func (o *Orchestrator) Add(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, w...)
}

// Connect binds an authenticated connection to its user.
func (o *Orchestrator) Connect(ctx context.Context, userID domain.UserID, conn contract.Connection) error {
	return o.presence.Connect(ctx, userID, conn)
}

// Disconnect stops the typing sessions driven by the connection, then unbinds it.
func (o *Orchestrator) Disconnect(ctx context.Context, connID domain.ConnectionID) {
	stopped := o.typing.DisconnectConnection(ctx, connID)
	userID, wentOffline := o.presence.Disconnect(ctx, connID)
	o.log.Debug("Connection closed", "connection_id", connID, "user_id", userID,
		"went_offline", wentOffline, "typing_stopped", stopped)
}

// Handle decodes one raw frame and applies it. Failures go back to the origin
// connection as operation-failed; they never reach other users.
func (o *Orchestrator) Handle(ctx context.Context, origin Origin, raw []byte) {
	var inbound domain.Inbound
	if err := json.Unmarshal(raw, &inbound); err != nil {
		o.engine.Reject(ctx, origin, "", "", errors.Validation(fmt.Errorf("malformed frame: %w", err)))
		return
	}
	handler, ok := o.handlers[inbound.Kind]
	if !ok {
		o.engine.Reject(ctx, origin, inbound.Kind, "", fmt.Errorf("%w %q", errors.ErrUnknownEvent, inbound.Kind))
		return
	}
	if messageID, err := handler(ctx, origin, inbound.Data); err != nil {
		o.engine.Reject(ctx, origin, inbound.Kind, messageID, err)
	}
}

// History returns a page of a chat, newest first, if userID is one of its members.
func (o *Orchestrator) History(userID domain.UserID, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	return o.engine.History(userID, chatID, cursor)
}

// OnlineUsers returns the current presence snapshot.
func (o *Orchestrator) OnlineUsers() []domain.UserID {
	return o.presence.Snapshot()
}

// Start registers the persistence pool and the extra workers, then blocks
// running them until ctx is cancelled or Stop is called. Either way the
// engine stops accepting messages first and the pool drains what was queued.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-runCtx.Done()
		o.engine.Close()
	}()

	pool := make([]contract.Worker, 0, o.numWorkers)
	for i := 0; i < o.numWorkers; i++ {
		pool = append(pool, workers.NewPersistenceWorker(o.log, o.messages, o.locks, o.persist))
	}

	o.mu.Lock()
	o.supervisor.Add(pool...)
	o.supervisor.Add(o.extra...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "persistence_workers", o.numWorkers)
	o.supervisor.Run(runCtx)
	return nil
}

// Stop ends the workers, drops every typing session and forgets every connection.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.engine.Close()
	o.supervisor.Stop()
	o.typing.Close()
	o.registry.Clear()
}

func (o *Orchestrator) handleSendMessage(ctx context.Context, origin Origin, data json.RawMessage) (string, error) {
	var cmd domain.SendMessageCommand
	if err := decode(data, &cmd); err != nil {
		return "", err
	}
	// Sending ends the sender's typing session in that chat
	o.typing.Stop(ctx, cmd.ChatID, origin.UserID)
	message, err := o.engine.Send(ctx, origin, cmd)
	if err != nil {
		return "", err
	}
	return message.ID.String(), nil
}

func (o *Orchestrator) handleStartTyping(ctx context.Context, origin Origin, data json.RawMessage) (string, error) {
	var cmd domain.TypingCommand
	if err := o.decodeValid(data, &cmd); err != nil {
		return "", err
	}
	o.typing.Signal(ctx, cmd.ChatID, origin.UserID, origin.Conn.ID(), cmd.Members)
	return "", nil
}

func (o *Orchestrator) handleStopTyping(ctx context.Context, origin Origin, data json.RawMessage) (string, error) {
	var cmd domain.TypingCommand
	if err := o.decodeValid(data, &cmd); err != nil {
		return "", err
	}
	o.typing.Stop(ctx, cmd.ChatID, origin.UserID)
	return "", nil
}

// handleChatPresence serves join-chat and leave-chat: the online set does not
// change, the given members just receive a fresh snapshot.
func (o *Orchestrator) handleChatPresence(ctx context.Context, origin Origin, data json.RawMessage) (string, error) {
	var cmd domain.ChatPresenceCommand
	if err := o.decodeValid(data, &cmd); err != nil {
		return "", err
	}
	if cmd.UserID != origin.UserID {
		o.log.Debug("Chat presence for another user", "user_id", origin.UserID, "claimed", cmd.UserID)
	}
	o.presence.Announce(ctx, cmd.Members)
	return "", nil
}

func (o *Orchestrator) handleReceipt(apply func(context.Context, domain.ReceiptCommand) error) handlerFunc {
	return func(ctx context.Context, _ Origin, data json.RawMessage) (string, error) {
		var cmd domain.ReceiptCommand
		if err := decode(data, &cmd); err != nil {
			return "", err
		}
		return cmd.MessageID, apply(ctx, cmd)
	}
}

func (o *Orchestrator) handleEditMessage(ctx context.Context, _ Origin, data json.RawMessage) (string, error) {
	var cmd domain.EditMessageCommand
	if err := decode(data, &cmd); err != nil {
		return "", err
	}
	return cmd.MessageID, o.engine.Edit(ctx, cmd)
}

func (o *Orchestrator) handleDeleteMessage(ctx context.Context, _ Origin, data json.RawMessage) (string, error) {
	var cmd domain.DeleteMessageCommand
	if err := decode(data, &cmd); err != nil {
		return "", err
	}
	return cmd.MessageID, o.engine.Delete(ctx, cmd)
}

func (o *Orchestrator) decodeValid(data json.RawMessage, v any) error {
	if err := decode(data, v); err != nil {
		return err
	}
	if err := o.engine.validate.Struct(v); err != nil {
		return errors.Validation(err)
	}
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.Validation(fmt.Errorf("missing data"))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Validation(err)
	}
	return nil
}
