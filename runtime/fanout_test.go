package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFanout_Emit_Skips_Offline_Users(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	fanout := NewFanout(log, registry)
	online := newConn("b-phone")

	// Given B is online and C is offline
	_, err := registry.Register("B", online)
	req.NoError(err)

	// When an event targets both
	delivered := fanout.Emit(ctx, []domain.UserID{"B", "C"}, domain.NewMessageAlertEvent, domain.NewMessageAlert{ChatID: "C42"})

	// Then only B receives it, without error
	req.Equal(1, delivered)
	events := online.events(domain.NewMessageAlertEvent)
	req.Len(events, 1)
	req.Equal(domain.NewMessageAlert{ChatID: "C42"}, events[0].Payload)
}

func TestFanout_Emit_Reaches_Every_Device_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	fanout := NewFanout(slog.Default(), registry)
	phone, laptop := newConn("phone"), newConn("laptop")
	_, _ = registry.Register("B", phone)
	_, _ = registry.Register("B", laptop)

	// When targets contain duplicates
	delivered := fanout.Emit(ctx, []domain.UserID{"B", "B"}, domain.OnlineUsersEvent, []domain.UserID{"B"})

	// Then each handle receives the event exactly once
	req.Equal(2, delivered)
	req.Len(phone.all(), 1)
	req.Len(laptop.all(), 1)
}

func TestFanout_Handle_Failure_Is_Isolated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	broken := mocks.NewMockConnection(ctrl)
	healthy := newConn("healthy")
	fanout := NewFanout(log, mockRegistry)

	// Given B has a broken device and a healthy one
	mockRegistry.EXPECT().HandlesFor(domain.UserID("B")).
		Return([]contract.Connection{broken, healthy}).Times(1)
	broken.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.ErrBackpressure).Times(1)
	broken.EXPECT().ID().Return(domain.ConnectionID("broken")).AnyTimes()

	// When an event is emitted
	delivered := fanout.Emit(ctx, []domain.UserID{"B"}, domain.NewMessageAlertEvent, domain.NewMessageAlert{ChatID: "C42"})

	// Then the healthy device still receives it
	req.Equal(1, delivered)
	req.Len(healthy.all(), 1)
}

func TestFanout_EmitExcept_Skips_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	fanout := NewFanout(slog.Default(), registry)
	a, b := newConn("a"), newConn("b")
	_, _ = registry.Register("A", a)
	_, _ = registry.Register("B", b)

	delivered := fanout.EmitExcept(ctx, []domain.UserID{"A", "B"}, "A", domain.StartTypingEvent, domain.Typing{ChatID: "C42", UserID: "A"})

	req.Equal(1, delivered)
	req.Empty(a.all())
	req.Len(b.events(domain.StartTypingEvent), 1)
}

func TestFanout_Preserves_Order_Per_Handle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	fanout := NewFanout(slog.Default(), registry)
	b := newConn("b")
	_, _ = registry.Register("B", b)

	for i := 0; i < 20; i++ {
		fanout.Emit(ctx, []domain.UserID{"B"}, domain.MessageEditedEvent, fmt.Sprintf("v%d", i))
	}

	events := b.all()
	req.Len(events, 20)
	for i, e := range events {
		req.Equal(fmt.Sprintf("v%d", i), e.Payload)
	}
}

func TestFanout_Reply(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	fanout := NewFanout(slog.Default(), NewRegistry())
	conn := newConn("a")

	err := fanout.Reply(ctx, conn, domain.OperationFailedEvent, domain.OperationFailed{Code: "validation"})
	req.NoError(err)
	req.Len(conn.events(domain.OperationFailedEvent), 1)

	conn.err = errors.ErrConnectionClosed
	err = fanout.Reply(ctx, conn, domain.OperationFailedEvent, domain.OperationFailed{Code: "validation"})
	req.ErrorIs(err, errors.ErrDelivery)

	req.NoError(fanout.Reply(ctx, nil, domain.OperationFailedEvent, nil))
}
