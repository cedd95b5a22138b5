package rconv2

import (
	"sync/atomic"

	json "github.com/segmentio/encoding/json"
)

// StatusCode is one of the four status codes the server replies with.
type StatusCode int

const (
	StatusOK           StatusCode = 200
	StatusBadRequest   StatusCode = 400
	StatusUnauthorized StatusCode = 401
	StatusInternal     StatusCode = 500
)

// requestIDCounter hands out process-unique, monotonically increasing
// request ids starting at 1. Every frame header carries one; only
// id-indexed mode uses it to match replies, ordered-queue mode uses it only
// in log lines.
var requestIDCounter uint64

func nextRequestID() uint32 {
	return uint32(atomic.AddUint64(&requestIDCounter, 1))
}

// requestEnvelope is the wire shape of an outgoing request.
type requestEnvelope struct {
	AuthToken   string `json:"authToken"`
	Version     int    `json:"version"`
	Name        string `json:"name"`
	ContentBody string `json:"contentBody"`
}

// newRequestEnvelope builds the wire envelope for (command, version, body).
// body is either a string (used verbatim) or any JSON-marshalable value,
// which is serialized to a nested JSON string per §3.
func newRequestEnvelope(authToken, command string, version int, body any) (requestEnvelope, error) {
	content, err := encodeContentBody(body)
	if err != nil {
		return requestEnvelope{}, err
	}
	return requestEnvelope{
		AuthToken:   authToken,
		Version:     version,
		Name:        command,
		ContentBody: content,
	}, nil
}

func encodeContentBody(body any) (string, error) {
	switch v := body.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func (r requestEnvelope) marshal() ([]byte, error) {
	return json.Marshal(r)
}

// responseEnvelope is the wire shape of an incoming response.
type responseEnvelope struct {
	Name          string     `json:"name"`
	Version       int        `json:"version"`
	StatusCode    StatusCode `json:"statusCode"`
	StatusMessage string     `json:"statusMessage"`
	ContentBody   string     `json:"contentBody"`
}

func unmarshalResponseEnvelope(b []byte) (responseEnvelope, error) {
	var r responseEnvelope
	if err := json.Unmarshal(b, &r); err != nil {
		return responseEnvelope{}, err
	}
	return r, nil
}

// commandError returns a *CommandError if the envelope's status is not OK,
// or nil otherwise.
func (r responseEnvelope) commandError() *CommandError {
	if r.StatusCode == StatusOK {
		return nil
	}
	return &CommandError{StatusCode: int(r.StatusCode), StatusMessage: r.StatusMessage}
}
