package runtime

import (
	"chat-sync/domain"
	"context"
	"sync"

	"github.com/samber/lo"
)

// recordingConn is an in-memory connection keeping every envelope it receives.
type recordingConn struct {
	id        domain.ConnectionID
	mu        sync.Mutex
	envelopes []domain.Envelope
	err       error
}

func newConn(id string) *recordingConn {
	return &recordingConn{id: domain.ConnectionID(id)}
}

func (c *recordingConn) ID() domain.ConnectionID { return c.id }

func (c *recordingConn) Send(_ context.Context, e domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.envelopes = append(c.envelopes, e)
	return nil
}

func (c *recordingConn) events(kind domain.EventKind) []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Filter(c.envelopes, func(e domain.Envelope, _ int) bool { return e.Kind == kind })
}

func (c *recordingConn) all() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Envelope(nil), c.envelopes...)
}
