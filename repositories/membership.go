//go:generate go run go.uber.org/mock/mockgen -source=membership.go -destination=../mocks/mock_membership_repository.go -package=mocks
package repositories

import (
	"chat-sync/domain"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
)

// IMembershipRepository is a read model of chat membership.
// Membership is managed elsewhere; clients send the member list of a chat
// with every chat-scoped event and Remember keeps the latest one.
type IMembershipRepository interface {
	MembersOf(chatID domain.ChatID) ([]domain.UserID, error)
	ChatsOf(userID domain.UserID) ([]domain.ChatID, error)
	Remember(chatID domain.ChatID, members []domain.UserID) error
}

var _ IMembershipRepository = (*MembershipRepository)(nil)

type MembershipRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMembershipRepository(db *badger.DB, log *slog.Logger) *MembershipRepository {
	return &MembershipRepository{db: db, log: log}
}

// member:{chat}:{user} lists the members of a chat,
// membership:{user}:{chat} lists the chats of a user.
func memberPrefix(chatID domain.ChatID) string {
	return fmt.Sprintf("member:%s:", segment(string(chatID)))
}

func membershipPrefix(userID domain.UserID) string {
	return fmt.Sprintf("membership:%s:", segment(string(userID)))
}

func (r *MembershipRepository) MembersOf(chatID domain.ChatID) ([]domain.UserID, error) {
	var members []domain.UserID
	err := r.db.View(func(txn *badger.Txn) error {
		ids, err := scanSuffixes(txn, memberPrefix(chatID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			members = append(members, domain.UserID(id))
		}
		return nil
	})
	return members, err
}

func (r *MembershipRepository) ChatsOf(userID domain.UserID) ([]domain.ChatID, error) {
	var chats []domain.ChatID
	err := r.db.View(func(txn *badger.Txn) error {
		ids, err := scanSuffixes(txn, membershipPrefix(userID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			chats = append(chats, domain.ChatID(id))
		}
		return nil
	})
	return chats, err
}

// Remember replaces the known member set of a chat, both directions at once.
func (r *MembershipRepository) Remember(chatID domain.ChatID, members []domain.UserID) error {
	members = domain.Set(members...)
	return r.db.Update(func(txn *badger.Txn) error {
		current, err := scanSuffixes(txn, memberPrefix(chatID))
		if err != nil {
			return err
		}
		if slices.Equal(current, toStrings(members)) {
			return nil
		}
		for _, userID := range current {
			if err = txn.Delete([]byte(memberPrefix(chatID) + segment(userID))); err != nil {
				return err
			}
			if err = txn.Delete([]byte(membershipPrefix(domain.UserID(userID)) + segment(string(chatID)))); err != nil {
				return err
			}
		}
		for _, userID := range members {
			if err = txn.Set([]byte(memberPrefix(chatID)+segment(string(userID))), []byte{}); err != nil {
				return err
			}
			if err = txn.Set([]byte(membershipPrefix(userID)+segment(string(chatID))), []byte{}); err != nil {
				return err
			}
		}
		r.log.Debug("Chat members remembered", "chat_id", chatID, "members", len(members))
		return nil
	})
}

// scanSuffixes returns the unescaped, sorted key suffixes under prefix.
func scanSuffixes(txn *badger.Txn, prefix string) ([]string, error) {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	var res []string
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		id, err := unsegment(string(it.Item().Key()[len(p):]))
		if err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	slices.Sort(res)
	return res, nil
}

func toStrings(users []domain.UserID) []string {
	res := make([]string, 0, len(users))
	for _, u := range users {
		res = append(res, string(u))
	}
	return res
}
