// Package messaging serves bound message patterns over non-HTTP transports.
//
// Controllers expose pattern handlers through the dispatch bridge; this
// package routes serialized envelopes to them. A Dispatcher executes
// envelopes in-process, the RedisTransport serves them over pub/sub
// request-reply, and the Gateway serves them over WebSocket connections.
// All transports share one wire format: requests travel as Envelope
// frames and answers come back as Reply frames, correlated by ID.
package messaging

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/dispatch"
	"github.com/xraph/loom/internal/shared"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// patternKey canonicalizes a pattern value to its table key. Strings
// pass through unchanged; maps and structs get the same sorted-key JSON
// form controllers declare theirs with.
func patternKey(pattern any) string {
	return shared.PatternOf(pattern).Key()
}

// Envelope is the wire form of one request or event: a correlation ID,
// the canonical pattern key, and the raw payload. An empty ID marks a
// fire-and-forget message that expects no reply.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Reply is the wire form of an answer. Exactly one of Data and Error is
// set; the ID echoes the envelope that produced it.
type Reply struct {
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody carries a failed reply across the wire using the same
// code/message shape the HTTP layer writes.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorBody) Error() string {
	return "[" + e.Code + "] " + e.Message
}

// EncodeEnvelope serializes an envelope for transport.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return codec.Marshal(env)
}

// DecodeEnvelope parses an envelope off the wire. Malformed frames come
// back as a bad-request error so transports can reply with a client
// fault instead of an opaque internal one.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.BadRequest("malformed message envelope")
	}
	return env, nil
}

// EncodeReply serializes a reply for transport.
func EncodeReply(reply Reply) ([]byte, error) {
	return codec.Marshal(reply)
}

// DecodeReply parses a reply off the wire.
func DecodeReply(data []byte) (Reply, error) {
	var reply Reply
	if err := codec.Unmarshal(data, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// NewReply builds a successful reply echoing the given correlation ID.
func NewReply(id string, data []byte) Reply {
	return Reply{ID: id, Data: data}
}

// NewErrorReply builds a failed reply. The error crosses the boundary
// the same way HTTP responses do: reportable errors keep their code and
// message, anything else is masked as an internal error.
func NewErrorReply(id string, err error) Reply {
	reportable := dispatch.Boundary(err)
	message := reportable.Error()
	if httpErr, ok := reportable.(*errors.HTTPError); ok {
		message = httpErr.Message
	}
	return Reply{ID: id, Error: &ErrorBody{
		Code:    reportable.ErrorCode(),
		Message: message,
	}}
}
