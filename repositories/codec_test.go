package repositories

import (
	"chat-sync/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestUnmarshalMessage_Skips_Unknown_Fields(t *testing.T) {
	req := require.New(t)
	message := domain.NewMessage("C42", "A", "hi", []string{"cdn://a", "cdn://b"}, time.Now().UTC())

	// Given a record written by a newer version with an extra field
	raw := marshalMessage(message)
	raw = protowire.AppendTag(raw, 42, protowire.BytesType)
	raw = protowire.AppendString(raw, "reactions")

	decoded, err := unmarshalMessage(raw)

	req.NoError(err)
	req.Equal(message, decoded)
}

func TestUnmarshalMessage_Truncated(t *testing.T) {
	req := require.New(t)
	raw := marshalMessage(domain.NewMessage("C42", "A", "hi", nil, time.Now().UTC()))

	_, err := unmarshalMessage(raw[:len(raw)-1])

	req.Error(err)
}
