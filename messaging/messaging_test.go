package messaging

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/errors"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		ID:      "req-1",
		Pattern: "users.create",
		Data:    []byte(`{"name":"ada"}`),
	}

	frame, err := EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, "req-1", decoded.ID)
	assert.Equal(t, "users.create", decoded.Pattern)
	assert.JSONEq(t, `{"name":"ada"}`, string(decoded.Data))
}

func TestDecodeEnvelopeRejectsMalformedFrames(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errors.GetHTTPStatusCode(err))
}

func TestErrorReplyKeepsReportableCodes(t *testing.T) {
	reply := NewErrorReply("req-9", errors.NotFound("user missing"))

	require.NotNil(t, reply.Error)
	assert.Equal(t, "req-9", reply.ID)
	assert.Equal(t, "NOT_FOUND", reply.Error.Code)
	assert.Equal(t, "user missing", reply.Error.Message)
	assert.Nil(t, reply.Data)
}

func TestErrorReplyMasksOpaqueErrors(t *testing.T) {
	reply := NewErrorReply("req-9", errors.New("password for db is hunter2"))

	require.NotNil(t, reply.Error)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", reply.Error.Code)
	assert.Equal(t, "internal server error", reply.Error.Message)
	assert.NotContains(t, reply.Error.Message, "hunter2")
}

func TestReplyRoundTripWithError(t *testing.T) {
	frame, err := EncodeReply(NewErrorReply("req-3", errors.Forbidden("not yours")))
	require.NoError(t, err)

	decoded, err := DecodeReply(frame)
	require.NoError(t, err)
	assert.Equal(t, "req-3", decoded.ID)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "FORBIDDEN", decoded.Error.Code)
	assert.EqualError(t, decoded.Error, "[FORBIDDEN] not yours")
}

func TestPatternKeyCanonicalizesMaps(t *testing.T) {
	a := patternKey(map[string]string{"cmd": "sum", "role": "math"})
	b := patternKey(map[string]string{"role": "math", "cmd": "sum"})
	assert.Equal(t, a, b)
	assert.Equal(t, "orders.created", patternKey("orders.created"))
}
