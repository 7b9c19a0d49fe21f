package repositories

import (
	"chat-sync/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the stored message record. Never reuse a number.
const (
	fieldID          protowire.Number = 1
	fieldChatID      protowire.Number = 2
	fieldSenderID    protowire.Number = 3
	fieldContent     protowire.Number = 4
	fieldAttachments protowire.Number = 5
	fieldStatus      protowire.Number = 6
	fieldIsDeleted   protowire.Number = 7
	fieldCreatedAt   protowire.Number = 8
	fieldUpdatedAt   protowire.Number = 9
)

// marshalMessage encodes a message with the protobuf wire format so records
// stay readable by any proto tooling and tolerate added fields.
func marshalMessage(m domain.Message) []byte {
	b := make([]byte, 0, 64+len(m.Content))
	b = appendString(b, fieldID, m.ID.String())
	b = appendString(b, fieldChatID, string(m.ChatID))
	b = appendString(b, fieldSenderID, string(m.SenderID))
	b = appendString(b, fieldContent, m.Content)
	for _, attachment := range m.Attachments {
		b = appendString(b, fieldAttachments, attachment)
	}
	b = appendString(b, fieldStatus, string(m.Status))
	b = protowire.AppendTag(b, fieldIsDeleted, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(m.IsDeleted))
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	b = protowire.AppendTag(b, fieldUpdatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.UpdatedAt.UnixNano()))
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func unmarshalMessage(b []byte) (domain.Message, error) {
	m := domain.Message{Attachments: []string{}}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Message{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num <= fieldStatus:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			b = b[n:]
			if err := setString(&m, num, s); err != nil {
				return domain.Message{}, err
			}
		case typ == protowire.VarintType && num >= fieldIsDeleted && num <= fieldUpdatedAt:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			b = b[n:]
			setVarint(&m, num, v)
		default:
			// Unknown field, written by a newer version
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

func setString(m *domain.Message, num protowire.Number, s string) error {
	switch num {
	case fieldID:
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("stored message id %q: %w", s, err)
		}
		m.ID = id
	case fieldChatID:
		m.ChatID = domain.ChatID(s)
	case fieldSenderID:
		m.SenderID = domain.UserID(s)
	case fieldContent:
		m.Content = s
	case fieldAttachments:
		m.Attachments = append(m.Attachments, s)
	case fieldStatus:
		m.Status = domain.Status(s)
	}
	return nil
}

func setVarint(m *domain.Message, num protowire.Number, v uint64) {
	switch num {
	case fieldIsDeleted:
		m.IsDeleted = protowire.DecodeBool(v)
	case fieldCreatedAt:
		m.CreatedAt = time.Unix(0, int64(v)).UTC()
	case fieldUpdatedAt:
		m.UpdatedAt = time.Unix(0, int64(v)).UTC()
	}
}
