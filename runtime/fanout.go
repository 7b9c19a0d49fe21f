package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"context"
	"log/slog"
)

var _ contract.IFanout = (*Fanout)(nil)

// Fanout delivers one logical event to every live handle of a set of users.
//
// Delivery is at-least-once to online users only: users without handles are
// skipped silently, and a failing handle is logged and never prevents
// delivery to the others. Order is only guaranteed per handle, which is why
// Send is a non-blocking enqueue on the connection's single outbound stream.
type Fanout struct {
	log      *slog.Logger
	registry contract.IRegistry
}

func NewFanout(log *slog.Logger, registry contract.IRegistry) *Fanout {
	return &Fanout{log: log, registry: registry}
}

// Emit returns the number of handles the envelope was handed to.
func (f *Fanout) Emit(ctx context.Context, targets []domain.UserID, kind domain.EventKind, payload any) int {
	return f.EmitExcept(ctx, targets, "", kind, payload)
}

// EmitExcept behaves like Emit but never delivers to except.
func (f *Fanout) EmitExcept(ctx context.Context, targets []domain.UserID, except domain.UserID, kind domain.EventKind, payload any) int {
	envelope := domain.Envelope{Kind: kind, Payload: payload}
	delivered := 0
	for _, userID := range domain.Set(targets...) {
		if userID == except {
			continue
		}
		for _, conn := range f.registry.HandlesFor(userID) {
			if err := conn.Send(ctx, envelope); err != nil {
				f.log.Warn("Fanout delivery failed",
					"user_id", userID,
					"event", kind,
					"error", errors.Delivery(string(conn.ID()), err))
				continue
			}
			delivered++
		}
	}
	f.log.Debug("Event fanned out", "event", kind, "targets", len(targets), "delivered", delivered)
	return delivered
}

// Reply targets a single handle, typically the one that issued a command.
func (f *Fanout) Reply(ctx context.Context, conn contract.Connection, kind domain.EventKind, payload any) error {
	if conn == nil {
		return nil
	}
	if err := conn.Send(ctx, domain.Envelope{Kind: kind, Payload: payload}); err != nil {
		return errors.Delivery(string(conn.ID()), err)
	}
	return nil
}
