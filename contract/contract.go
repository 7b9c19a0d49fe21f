//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-sync/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live transport session of a user.
// Send must not block: implementations enqueue on a single FIFO outbound
// stream so events for the same connection keep their emission order.
type Connection interface {
	ID() domain.ConnectionID
	Send(ctx context.Context, envelope domain.Envelope) error
}

type IRegistry interface {
	Register(userID domain.UserID, conn Connection) (bool, error)
	Unregister(connID domain.ConnectionID) (domain.UserID, bool, bool)
	HandlesFor(userID domain.UserID) []Connection
	IsOnline(userID domain.UserID) bool
	OnlineUsers() []domain.UserID
	Count() int
	Clear()
}

type IFanout interface {
	Emit(ctx context.Context, targets []domain.UserID, kind domain.EventKind, payload any) int
	EmitExcept(ctx context.Context, targets []domain.UserID, except domain.UserID, kind domain.EventKind, payload any) int
	Reply(ctx context.Context, conn Connection, kind domain.EventKind, payload any) error
}

// Moderator rewrites user content before it reaches other participants.
type Moderator interface {
	Censor(content string) string
}
