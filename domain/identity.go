// Package domain contains core concepts of the chat synchronization layer.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"slices"

	"github.com/samber/lo"
)

// UserID is an opaque user identity issued by the authentication layer.
type UserID string

// ChatID identifies a chat room. Membership is owned by an external service.
type ChatID string

// ConnectionID identifies one live transport session.
type ConnectionID string

// Set builds a deduplicated, sorted list of user ids, skipping empty ids.
func Set(users ...UserID) []UserID {
	res := lo.Uniq(lo.Filter(users, func(u UserID, _ int) bool { return u != "" }))
	slices.Sort(res)
	return res
}
