package repositories

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMessageRepository_Create_And_Find(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC()
	message := domain.NewMessage("C42", "A", "hi", []string{"cdn://cat.png"}, at)

	// When a message is created
	id, err := repository.Create(message)

	// Then it can be found back by id
	req.NoError(err)
	req.Equal(message.ID, id)
	found, err := repository.FindByID(id)
	req.NoError(err)
	req.NotNil(found)
	req.Equal(message, *found)
}

func TestMessageRepository_Create_Twice_Fails(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	message := domain.NewMessage("C42", "A", "hi", nil, time.Now().UTC())

	_, err := repository.Create(message)
	req.NoError(err)
	_, err = repository.Create(message)
	req.ErrorIs(err, errMessageExists)
}

func TestMessageRepository_FindByID_Absent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)

	found, err := repository.FindByID(uuid.New())

	req.NoError(err)
	req.Nil(found)
}

func TestMessageRepository_Update(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC()
	message := domain.NewMessage("C42", "A", "hi", []string{"cdn://cat.png"}, at)
	_, err := repository.Create(message)
	req.NoError(err)

	// When the message is tombstoned
	message.Delete(at.Add(time.Minute))
	req.NoError(repository.Update(message))

	// Then the stored state follows
	found, err := repository.FindByID(message.ID)
	req.NoError(err)
	req.True(found.IsDeleted)
	req.Equal(domain.Tombstone, found.Content)
	req.Empty(found.Attachments)
	req.Equal(at.Add(time.Minute), found.UpdatedAt)
}

func TestMessageRepository_Update_Absent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)

	err := repository.Update(domain.NewMessage("C42", "A", "hi", nil, time.Now().UTC()))

	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestMessageRepository_ListByChat_Newest_First_With_Cursor(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), slog.Default(), &limit)
	at := time.Now().UTC()
	messages := []domain.Message{
		domain.NewMessage("C42", "Alice", "one", nil, at),
		domain.NewMessage("C42", "Bob", "two", nil, at.Add(1*time.Minute)),
		domain.NewMessage("C42", "Clara", "three", nil, at.Add(2*time.Minute)),
		domain.NewMessage("C43", "Alice", "elsewhere", nil, at),
	}
	for _, m := range messages {
		_, err := repository.Create(m)
		req.NoError(err)
	}

	// When the first page is fetched
	page, cursor, err := repository.ListByChat("C42", nil)

	// Then the two newest messages of the chat come back
	req.NoError(err)
	req.Equal([]string{"three", "two"}, lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))
	req.NotNil(cursor)

	// When the next page is fetched
	page, _, err = repository.ListByChat("C42", cursor)

	// Then the remaining message comes back
	req.NoError(err)
	req.Equal([]string{"one"}, lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))
}

func TestMessageRepository_Chat_Prefix_Does_Not_Leak(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC()
	_, err := repository.Create(domain.NewMessage("a", "A", "in a", nil, at))
	req.NoError(err)
	_, err = repository.Create(domain.NewMessage("a:b", "A", "in a:b", nil, at))
	req.NoError(err)

	page, _, err := repository.ListByChat("a", nil)

	req.NoError(err)
	req.Len(page, 1)
	req.Equal("in a", page[0].Content)
}
