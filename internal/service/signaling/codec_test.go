package signaling

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"inspectcall-backend/internal/domain"
	apperrors "inspectcall-backend/pkg/errors"
)

func TestDecodeMessage(t *testing.T) {
	raw := []byte(`{"type":"offer","callId":"` + uuid.NewString() + `","userId":"` + uuid.NewString() + `","data":{"sdp":"v=0"}}`)

	msg, err := DecodeMessage(raw)

	assert.NoError(t, err)
	assert.Equal(t, domain.SignalTypeOffer, msg.Type)
	assert.NotEmpty(t, msg.CallID)
	assert.NotEmpty(t, msg.UserID)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(msg.Data))
}

func TestDecodeMessageAllKnownTypes(t *testing.T) {
	types := []string{
		"offer", "answer", "ice-candidate", "join-call", "leave-call",
		"capture-image", "chat-message", "capture-request",
		"capture-complete", "capture-error", "ice-restart-request",
	}

	for _, typ := range types {
		raw := []byte(`{"type":"` + typ + `","callId":"c1","userId":"u1"}`)
		msg, err := DecodeMessage(raw)
		assert.NoError(t, err, "type %s should decode", typ)
		assert.Equal(t, domain.SignalType(typ), msg.Type)
	}
}

func TestDecodeMessageUnknownType(t *testing.T) {
	raw := []byte(`{"type":"mute-audio","callId":"c1","userId":"u1"}`)

	msg, err := DecodeMessage(raw)

	assert.Nil(t, msg)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDecode))
}

func TestDecodeMessageMalformedJSON(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":`))

	assert.Nil(t, msg)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDecode))
}

func TestDecodeMessageMissingFields(t *testing.T) {
	cases := map[string]string{
		"missing callId": `{"type":"offer","userId":"u1"}`,
		"missing userId": `{"type":"offer","callId":"c1"}`,
		"missing type":   `{"callId":"c1","userId":"u1"}`,
	}

	for name, raw := range cases {
		msg, err := DecodeMessage([]byte(raw))
		assert.Nil(t, msg, name)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDecode), name)
	}
}

func TestEncodeMessageWireFields(t *testing.T) {
	msg := &domain.SignalingMessage{
		Type:   domain.SignalTypeICECandidate,
		CallID: "call-1",
		UserID: "user-1",
	}

	raw, err := EncodeMessage(msg)

	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"ice-candidate"`)
	assert.Contains(t, string(raw), `"callId":"call-1"`)
	assert.Contains(t, string(raw), `"userId":"user-1"`)
	// Empty data is omitted from the wire
	assert.NotContains(t, string(raw), `"data"`)
}
