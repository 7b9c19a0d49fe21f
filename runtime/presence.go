package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// PresenceScope selects who receives online-users broadcasts.
type PresenceScope string

const (
	// ScopeChat targets the members of every chat the user belongs to.
	ScopeChat PresenceScope = "chat"
	// ScopeGlobal targets every connected user.
	ScopeGlobal PresenceScope = "global"
)

func ParsePresenceScope(s string) (PresenceScope, error) {
	switch PresenceScope(s) {
	case ScopeChat, "":
		return ScopeChat, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	default:
		return "", fmt.Errorf("unknown presence scope %q, expected %q or %q", s, ScopeChat, ScopeGlobal)
	}
}

// Presence derives the online set from registry transitions and broadcasts
// the full snapshot whenever a user crosses zero handles.
type Presence struct {
	log        *slog.Logger
	registry   contract.IRegistry
	fanout     contract.IFanout
	membership repositories.IMembershipRepository
	scope      PresenceScope
	// broadcasts serializes snapshot+emit so the last broadcast is never older than a previous one
	broadcasts sync.Mutex
}

func NewPresence(log *slog.Logger, registry contract.IRegistry, fanout contract.IFanout,
	membership repositories.IMembershipRepository, scope PresenceScope) *Presence {
	return &Presence{
		log:        log,
		registry:   registry,
		fanout:     fanout,
		membership: membership,
		scope:      scope,
	}
}

// Connect registers the handle and broadcasts presence if the user just came online.
func (p *Presence) Connect(ctx context.Context, userID domain.UserID, conn contract.Connection) error {
	becameOnline, err := p.registry.Register(userID, conn)
	if err != nil {
		return err
	}
	p.log.Debug("Connection registered", "user_id", userID, "connection_id", conn.ID(), "became_online", becameOnline)
	if becameOnline {
		p.broadcast(ctx, userID)
	}
	return nil
}

// Disconnect unregisters the handle and broadcasts presence if it was the owner's last one.
func (p *Presence) Disconnect(ctx context.Context, connID domain.ConnectionID) (domain.UserID, bool) {
	userID, wentOffline, ok := p.registry.Unregister(connID)
	if !ok {
		return "", false
	}
	p.log.Debug("Connection unregistered", "user_id", userID, "connection_id", connID, "went_offline", wentOffline)
	if wentOffline {
		p.broadcast(ctx, userID)
	}
	return userID, wentOffline
}

// Snapshot returns the full online set.
func (p *Presence) Snapshot() []domain.UserID {
	return p.registry.OnlineUsers()
}

// Announce sends the current snapshot to an explicit member list, used when
// a client joins or leaves a chat view.
func (p *Presence) Announce(ctx context.Context, members []domain.UserID) int {
	p.broadcasts.Lock()
	defer p.broadcasts.Unlock()
	return p.fanout.Emit(ctx, members, domain.OnlineUsersEvent, p.Snapshot())
}

func (p *Presence) broadcast(ctx context.Context, userID domain.UserID) {
	// Resolved before locking: membership lookups hit storage
	targets := p.targets(userID)

	p.broadcasts.Lock()
	defer p.broadcasts.Unlock()
	snapshot := p.Snapshot()
	if p.scope == ScopeGlobal {
		targets = snapshot
	}
	delivered := p.fanout.Emit(ctx, targets, domain.OnlineUsersEvent, snapshot)
	p.log.Debug("Presence broadcast", "user_id", userID, "online", len(snapshot), "delivered", delivered)
}

func (p *Presence) targets(userID domain.UserID) []domain.UserID {
	if p.scope == ScopeGlobal {
		return nil
	}
	targets := []domain.UserID{userID}
	chats, err := p.membership.ChatsOf(userID)
	if err != nil {
		p.log.Warn("Presence targets unresolved", "user_id", userID, "error", err)
		return targets
	}
	for _, chatID := range chats {
		members, err := p.membership.MembersOf(chatID)
		if err != nil {
			p.log.Warn("Chat members unresolved", "chat_id", chatID, "error", err)
			continue
		}
		targets = append(targets, members...)
	}
	return domain.Set(targets...)
}
