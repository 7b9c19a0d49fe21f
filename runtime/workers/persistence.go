package workers

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/repositories"
	"context"
	"log/slog"

	"github.com/google/uuid"
)

var _ contract.Worker = (*PersistenceWorker)(nil)

// PersistJob asks for a freshly sent message to be created in storage.
// Done is called exactly once with the outcome.
type PersistJob struct {
	Message domain.Message
	Done    func(err error)
}

// KeyLocker serializes work on one message id.
type KeyLocker interface {
	Lock(id uuid.UUID) func()
}

// PersistenceWorker drains the persistence queue. Several of them share the
// same channel; a job is handled by exactly one. The producer owns the
// channel: once ctx is done the worker keeps persisting until it is closed.
type PersistenceWorker struct {
	log        *slog.Logger
	repository repositories.IMessageRepository
	locks      KeyLocker
	jobs       <-chan PersistJob
}

func NewPersistenceWorker(log *slog.Logger, repository repositories.IMessageRepository,
	locks KeyLocker, jobs <-chan PersistJob) *PersistenceWorker {
	return &PersistenceWorker{log: log, repository: repository, locks: locks, jobs: jobs}
}

func (w *PersistenceWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Draining persistence queue before stopping")
			w.drain()
			w.log.Debug("Stopping persistence worker")
			return nil
		case job, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Persistence channel is closed")
				return nil
			}
			w.persist(job)
		}
	}
}

// drain persists everything queued until the producer closes the channel,
// so a message accepted during shutdown is either stored or reported.
func (w *PersistenceWorker) drain() {
	for job := range w.jobs {
		w.persist(job)
	}
}

func (w *PersistenceWorker) persist(job PersistJob) {
	err := w.create(job.Message)
	if err != nil {
		err = errors.Persistence("create", err)
		w.log.Error("Message not persisted", "message_id", job.Message.ID, "chat_id", job.Message.ChatID, "error", err)
	} else {
		w.log.Debug("Message persisted", "message_id", job.Message.ID)
	}
	if job.Done != nil {
		job.Done(err)
	}
}

// create holds the message lock only for the storage call, released even if it panics.
func (w *PersistenceWorker) create(message domain.Message) error {
	unlock := w.locks.Lock(message.ID)
	defer unlock()
	_, err := w.repository.Create(message)
	return err
}
