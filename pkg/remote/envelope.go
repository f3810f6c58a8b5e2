package remote

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// EnvelopeKind tells whether a response body carried a success envelope.
type EnvelopeKind int

const (
	// EnvelopeRaw is any JSON body without a top-level "success" field.
	EnvelopeRaw EnvelopeKind = iota
	// EnvelopeWrapped is a JSON object with a top-level "success" field.
	EnvelopeWrapped
)

// Envelope is the normalized view of a response body.
type Envelope struct {
	Kind    EnvelopeKind
	Success bool
	Message string
	Body    json.RawMessage
}

// DecodeEnvelope inspects a JSON body for the API's success envelope. The
// "success" field follows JavaScript truthiness: false, null, 0 and "" count
// as failure.
func DecodeEnvelope(body []byte) (Envelope, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("null")
	}

	if !json.Valid(body) {
		return Envelope{}, ErrInvalidJSON
	}

	env := Envelope{Kind: EnvelopeRaw, Success: true, Body: json.RawMessage(body)}

	if body[0] != '{' {
		return env, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Envelope{}, err
	}

	env.Message = messageField(fields)

	success, ok := fields["success"]
	if !ok {
		return env, nil
	}

	env.Kind = EnvelopeWrapped
	env.Success = truthy(success)

	return env, nil
}

// Normalize applies the success-envelope rule to a completed HTTP exchange and
// returns the body on success.
func Normalize(statusCode int, body []byte) (json.RawMessage, error) {
	ok := statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices

	env, err := DecodeEnvelope(body)
	if err != nil {
		if ok {
			return nil, &Error{
				Kind:       KindTransport,
				StatusCode: statusCode,
				Message:    "invalid JSON response body",
				Body:       body,
				Err:        err,
			}
		}

		return nil, &Error{
			Kind:       KindProtocol,
			StatusCode: statusCode,
			Message:    protocolText(strings.TrimSpace(string(body)), statusCode),
			Body:       body,
		}
	}

	if !ok {
		message := env.Message
		if message == "" {
			message = protocolText(compact(env.Body), statusCode)
		}

		return nil, &Error{
			Kind:       KindProtocol,
			StatusCode: statusCode,
			Message:    message,
			Body:       body,
		}
	}

	if env.Kind == EnvelopeWrapped && !env.Success {
		message := env.Message
		if message == "" {
			message = defaultFailureMessage
		}

		return nil, &Error{
			Kind:       KindApplication,
			StatusCode: statusCode,
			Message:    message,
			Body:       body,
		}
	}

	return env.Body, nil
}

func messageField(fields map[string]json.RawMessage) string {
	raw, ok := fields["message"]
	if !ok {
		return ""
	}

	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		return ""
	}

	return message
}

func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	default:
		return true
	}
}

func compact(body json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return string(body)
	}

	return buf.String()
}

func protocolText(text string, statusCode int) string {
	if text == "" || text == "null" {
		return http.StatusText(statusCode)
	}

	return text
}
