package runtime

import (
	"chat-sync/domain"
	"chat-sync/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newPresence(t *testing.T, scope PresenceScope) (*Presence, *Registry, *mocks.MockIMembershipRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	membership := mocks.NewMockIMembershipRepository(ctrl)
	return NewPresence(log, registry, NewFanout(log, registry), membership, scope), registry, membership
}

func TestPresence_Broadcasts_Only_On_Transitions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	presence, _, membership := newPresence(t, ScopeChat)
	membership.EXPECT().ChatsOf(gomock.Any()).Return([]domain.ChatID{"C42"}, nil).AnyTimes()
	membership.EXPECT().MembersOf(domain.ChatID("C42")).Return([]domain.UserID{"A", "B"}, nil).AnyTimes()
	observer := newConn("b")

	// Given B is online
	req.NoError(presence.Connect(ctx, "B", observer))
	req.Len(observer.events(domain.OnlineUsersEvent), 1)

	// When A connects from a first device
	req.NoError(presence.Connect(ctx, "A", newConn("a-phone")))
	// Then B is told once
	req.Len(observer.events(domain.OnlineUsersEvent), 2)

	// When A connects a second device, then drops one
	req.NoError(presence.Connect(ctx, "A", newConn("a-laptop")))
	presence.Disconnect(ctx, "a-phone")
	// Then nothing crosses zero, nothing is broadcast
	req.Len(observer.events(domain.OnlineUsersEvent), 2)

	// When A's last device leaves
	userID, wentOffline := presence.Disconnect(ctx, "a-laptop")

	// Then B is told once more, with the full snapshot
	req.Equal(domain.UserID("A"), userID)
	req.True(wentOffline)
	events := observer.events(domain.OnlineUsersEvent)
	req.Len(events, 3)
	req.Equal([]domain.UserID{"A", "B"}, events[1].Payload)
	req.Equal([]domain.UserID{"B"}, events[2].Payload)
}

func TestPresence_Chat_Scope_Skips_Strangers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	presence, _, membership := newPresence(t, ScopeChat)
	membership.EXPECT().ChatsOf(domain.UserID("A")).Return([]domain.ChatID{"C42"}, nil).AnyTimes()
	membership.EXPECT().ChatsOf(gomock.Any()).Return(nil, nil).AnyTimes()
	membership.EXPECT().MembersOf(domain.ChatID("C42")).Return([]domain.UserID{"A", "B"}, nil).AnyTimes()
	friend, stranger := newConn("b"), newConn("z")
	req.NoError(presence.Connect(ctx, "B", friend))
	req.NoError(presence.Connect(ctx, "Z", stranger))
	before := len(stranger.events(domain.OnlineUsersEvent))

	// When A comes online
	self := newConn("a")
	req.NoError(presence.Connect(ctx, "A", self))

	// Then chat members (A included) are told, Z is not
	req.NotEmpty(friend.events(domain.OnlineUsersEvent))
	req.Len(self.events(domain.OnlineUsersEvent), 1)
	req.Len(stranger.events(domain.OnlineUsersEvent), before)
}

func TestPresence_Global_Scope_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	presence, _, _ := newPresence(t, ScopeGlobal)
	conns := make([]*recordingConn, 0, 3)
	for i := 0; i < 3; i++ {
		conn := newConn(fmt.Sprintf("c%d", i))
		conns = append(conns, conn)
		req.NoError(presence.Connect(ctx, domain.UserID(fmt.Sprintf("U%d", i)), conn))
	}

	// When the first user leaves
	presence.Disconnect(ctx, "c0")

	// Then every remaining user got the new snapshot, without any membership lookup
	for _, conn := range conns[1:] {
		events := conn.events(domain.OnlineUsersEvent)
		req.Equal([]domain.UserID{"U1", "U2"}, events[len(events)-1].Payload)
	}
	req.Equal([]domain.UserID{"U1", "U2"}, presence.Snapshot())
}

func TestPresence_Membership_Failure_Still_Tells_The_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	presence, _, membership := newPresence(t, ScopeChat)
	membership.EXPECT().ChatsOf(domain.UserID("A")).Return(nil, fmt.Errorf("badger closed")).Times(1)
	self := newConn("a")

	req.NoError(presence.Connect(ctx, "A", self))

	req.Len(self.events(domain.OnlineUsersEvent), 1)
}

func TestPresence_Announce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	presence, registry, _ := newPresence(t, ScopeGlobal)
	b := newConn("b")
	_, _ = registry.Register("B", b)
	_, _ = registry.Register("C", newConn("c"))

	delivered := presence.Announce(ctx, []domain.UserID{"B"})

	req.Equal(1, delivered)
	req.Equal([]domain.UserID{"B", "C"}, b.events(domain.OnlineUsersEvent)[0].Payload)
}

func TestPresence_Disconnect_Unknown(t *testing.T) {
	req := require.New(t)
	presence, _, _ := newPresence(t, ScopeChat)

	userID, wentOffline := presence.Disconnect(context.Background(), "ghost")

	req.Empty(userID)
	req.False(wentOffline)
}

func TestParsePresenceScope(t *testing.T) {
	req := require.New(t)

	scope, err := ParsePresenceScope("")
	req.NoError(err)
	req.Equal(ScopeChat, scope)

	scope, err = ParsePresenceScope("global")
	req.NoError(err)
	req.Equal(ScopeGlobal, scope)

	_, err = ParsePresenceScope("room")
	req.Error(err)
}
