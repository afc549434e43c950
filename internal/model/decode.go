package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slack-go/slack/slackevents"
)

// ErrMalformedPayload is returned when a request body is not a valid Events API payload
var ErrMalformedPayload = errors.New("malformed payload")

type rawPayload struct {
	Envelope
	Challenge json.RawMessage `json:"challenge"`
	Event     json.RawMessage `json:"event"`
}

type rawEventHeader struct {
	Type *string `json:"type"`
}

// DecodePayload parses a request body into exactly one Payload variant.
// A challenge wins over everything else in the body.
func DecodePayload(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}

	var raw rawPayload
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if len(raw.Challenge) > 0 {
		return ChallengePayload{Envelope: raw.Envelope, Challenge: challengeLiteral(raw.Challenge)}, nil
	}

	event := bytes.TrimSpace(raw.Event)
	if len(event) == 0 || bytes.Equal(event, []byte("null")) {
		return NoEventPayload{Envelope: raw.Envelope}, nil
	}

	var header rawEventHeader
	if err := json.Unmarshal(event, &header); err != nil {
		return nil, fmt.Errorf("%w: event: %v", ErrMalformedPayload, err)
	}
	if header.Type == nil {
		return nil, fmt.Errorf("%w: event has no type", ErrMalformedPayload)
	}

	if *header.Type != LinkSharedType {
		return OtherEvent{Envelope: raw.Envelope, EventType: *header.Type}, nil
	}

	var linkShared slackevents.LinkSharedEvent
	if err := json.Unmarshal(event, &linkShared); err != nil {
		return nil, fmt.Errorf("%w: link_shared event: %v", ErrMalformedPayload, err)
	}
	return LinkSharedEvent{Envelope: raw.Envelope, Event: linkShared}, nil
}

// challengeLiteral returns a string challenge unquoted and any other value as written
func challengeLiteral(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(bytes.TrimSpace(raw))
}
