package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTypingTimeout is the debounce window after the last keystroke.
const DefaultTypingTimeout = 2 * time.Second

type typingKey struct {
	chatID domain.ChatID
	userID domain.UserID
}

// typingSession exists only while a user is Typing in a chat.
// Once closed it is out of the map and a new signal creates a new session.
type typingSession struct {
	mu      sync.Mutex
	closed  bool
	gen     uint64
	timer   *time.Timer
	members []domain.UserID
	connID  domain.ConnectionID
}

// Typing turns raw content-change signals into start/stop typing edges.
//
//	Idle --signal--> Typing     emits start-typing, arms the timeout
//	Typing --signal--> Typing   re-arms the timeout, emits nothing
//	Typing --stop|timeout|disconnect--> Idle   emits stop-typing
//
// Sessions are independent: each one has its own lock.
type Typing struct {
	log      *slog.Logger
	fanout   contract.IFanout
	timeout  time.Duration
	sessions sync.Map // typingKey -> *typingSession
}

func NewTyping(log *slog.Logger, fanout contract.IFanout, timeout time.Duration) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{log: log, fanout: fanout, timeout: timeout}
}

// Signal records a content change from userID in chatID. It returns true
// when it started a new typing session.
func (t *Typing) Signal(ctx context.Context, chatID domain.ChatID, userID domain.UserID,
	connID domain.ConnectionID, members []domain.UserID) bool {
	key := typingKey{chatID: chatID, userID: userID}
	for {
		value, _ := t.sessions.LoadOrStore(key, &typingSession{})
		s := value.(*typingSession)
		s.mu.Lock()
		if s.closed {
			// Lost a race with a stop; the map no longer holds s
			s.mu.Unlock()
			continue
		}
		s.members = members
		s.connID = connID
		s.gen++
		gen := s.gen
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(t.timeout, func() { t.expire(key, s, gen) })
		// Whoever locks a fresh session first performs the Idle -> Typing edge
		started := s.gen == 1
		if started {
			t.fanout.EmitExcept(ctx, members, userID, domain.StartTypingEvent,
				domain.Typing{ChatID: chatID, UserID: userID})
		}
		s.mu.Unlock()
		return started
	}
}

// Stop ends the typing session of userID in chatID, if any.
func (t *Typing) Stop(ctx context.Context, chatID domain.ChatID, userID domain.UserID) bool {
	key := typingKey{chatID: chatID, userID: userID}
	value, ok := t.sessions.Load(key)
	if !ok {
		return false
	}
	s := value.(*typingSession)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	t.finish(ctx, key, s)
	return true
}

// DisconnectConnection ends every session last driven by connID so that no
// "typing…" indicator outlives the connection. It returns the number of sessions stopped.
func (t *Typing) DisconnectConnection(ctx context.Context, connID domain.ConnectionID) int {
	stopped := 0
	t.sessions.Range(func(k, v any) bool {
		s := v.(*typingSession)
		s.mu.Lock()
		if !s.closed && s.connID == connID {
			t.finish(ctx, k.(typingKey), s)
			stopped++
		}
		s.mu.Unlock()
		return true
	})
	return stopped
}

// Active returns the number of users currently typing, all chats included.
func (t *Typing) Active() int {
	n := 0
	t.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close drops every session without emitting, used on shutdown.
func (t *Typing) Close() {
	t.sessions.Range(func(k, v any) bool {
		s := v.(*typingSession)
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.closed = true
		s.mu.Unlock()
		t.sessions.Delete(k)
		return true
	})
}

func (t *Typing) expire(key typingKey, s *typingSession, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		return
	}
	t.log.Debug("Typing timed out", "chat_id", key.chatID, "user_id", key.userID)
	t.finish(context.Background(), key, s)
}

// finish must be called with s.mu held.
func (t *Typing) finish(ctx context.Context, key typingKey, s *typingSession) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.closed = true
	t.sessions.CompareAndDelete(key, s)
	t.fanout.EmitExcept(ctx, s.members, key.userID, domain.StopTypingEvent,
		domain.Typing{ChatID: key.chatID, UserID: key.userID})
}
