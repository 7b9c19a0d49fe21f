//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-sync/domain"
	"chat-sync/errors"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// IMessageRepository is the durable store of messages, reachable by message
// id and by chat id. It is the system of record for message state.
type IMessageRepository interface {
	Create(message domain.Message) (uuid.UUID, error)
	FindByID(id uuid.UUID) (*domain.Message, error)
	Update(message domain.Message) error
	ListByChat(chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error)
}

var _ IMessageRepository = (*MessageRepository)(nil)

var errMessageExists = fmt.Errorf("message already exists")

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

func messageKey(id uuid.UUID) []byte {
	return []byte("msg:" + id.String())
}

func chatPrefix(chatID domain.ChatID) string {
	return fmt.Sprintf("chat:%s:", segment(string(chatID)))
}

// chatKey is formatted as "chat:{chat_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Keep two messages created at the same nanosecond apart.
func chatKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", chatPrefix(m.ChatID), m.CreatedAt.UnixNano(), m.ID))
}

// Create stores a new message and its chat index entry in one transaction.
func (r *MessageRepository) Create(message domain.Message) (uuid.UUID, error) {
	err := r.db.Update(func(txn *badger.Txn) error {
		key := messageKey(message.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", errMessageExists, message.ID)
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, marshalMessage(message)); err != nil {
			return err
		}
		return txn.Set(chatKey(message), []byte(message.ID.String()))
	})
	if err != nil {
		return uuid.Nil, err
	}
	return message.ID, nil
}

// FindByID returns nil without error when the message does not exist.
func (r *MessageRepository) FindByID(id uuid.UUID) (*domain.Message, error) {
	var message *domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		m, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		message = m
		return nil
	})
	return message, err
}

func getMessage(txn *badger.Txn, id uuid.UUID) (*domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var message domain.Message
	err = item.Value(func(val []byte) error {
		message, err = unmarshalMessage(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// Update overwrites an existing message. ChatID and CreatedAt are part of the
// chat index key and are expected to be unchanged.
func (r *MessageRepository) Update(message domain.Message) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := messageKey(message.ID)
		if _, err := txn.Get(key); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w %s", errors.ErrMessageNotFound, message.ID)
			}
			return err
		}
		return txn.Set(key, marshalMessage(message))
	})
}

// ListByChat returns the history of a chat from the newest message backwards,
// using a prefix scan on the chat index. The returned cursor resumes the scan
// just after the last message returned.
func (r *MessageRepository) ListByChat(chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := chatPrefix(chatID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk back
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(messages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])

			rawID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id, err := uuid.ParseBytes(rawID)
			if err != nil {
				return fmt.Errorf("chat index %s: %w", item.Key(), err)
			}
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message == nil {
				r.log.Warn("Dangling chat index entry", "key", string(item.Key()))
				continue
			}
			messages = append(messages, *message)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, &lastKey, nil
}
