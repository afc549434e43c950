package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	t.Run("challenge wins over token and event", func(t *testing.T) {
		p, err := DecodePayload([]byte(`{"token":"wrong","challenge":"3eZbrw1a","type":"url_verification","event":{"type":"link_shared"}}`))
		require.NoError(t, err)
		challenge, ok := p.(ChallengePayload)
		require.True(t, ok)
		assert.Equal(t, "3eZbrw1a", challenge.Challenge)
		assert.Equal(t, "wrong", challenge.Meta().Token)
	})

	t.Run("empty challenge is still a challenge", func(t *testing.T) {
		p, err := DecodePayload([]byte(`{"challenge":""}`))
		require.NoError(t, err)
		assert.IsType(t, ChallengePayload{}, p)
	})

	t.Run("non string challenge is echoed as written", func(t *testing.T) {
		for body, want := range map[string]string{
			`{"challenge":12345}`:        "12345",
			`{"challenge": {"a": [1]} }`: `{"a": [1]}`,
			`{"challenge":true}`:         "true",
		} {
			p, err := DecodePayload([]byte(body))
			require.NoError(t, err, body)
			challenge, ok := p.(ChallengePayload)
			require.True(t, ok, body)
			assert.Equal(t, want, challenge.Challenge, body)
		}
	})

	t.Run("link shared", func(t *testing.T) {
		body := `{
			"token": "tok",
			"team_id": "T1",
			"type": "event_callback",
			"event": {
				"type": "link_shared",
				"channel": "C123",
				"user": "U1",
				"message_ts": "1.2",
				"links": [{"domain": "a.test", "url": "<http://a.test>"}, {"domain": "b.test", "url": "http://b.test"}]
			}
		}`
		p, err := DecodePayload([]byte(body))
		require.NoError(t, err)
		ev, ok := p.(LinkSharedEvent)
		require.True(t, ok)
		assert.Equal(t, "T1", ev.TeamID)
		assert.Equal(t, "tok", ev.Meta().Token)
		assert.Equal(t, "C123", ev.Event.Channel)
		assert.Equal(t, []string{"<http://a.test>", "http://b.test"}, ev.URLs())
	})

	t.Run("link shared without links", func(t *testing.T) {
		p, err := DecodePayload([]byte(`{"token":"tok","event":{"type":"link_shared","channel":"C1"}}`))
		require.NoError(t, err)
		ev, ok := p.(LinkSharedEvent)
		require.True(t, ok)
		assert.Empty(t, ev.URLs())
	})

	t.Run("other event type", func(t *testing.T) {
		p, err := DecodePayload([]byte(`{"token":"tok","event":{"type":"team_join"}}`))
		require.NoError(t, err)
		other, ok := p.(OtherEvent)
		require.True(t, ok)
		assert.Equal(t, "team_join", other.EventType)
	})

	t.Run("no event", func(t *testing.T) {
		for _, body := range []string{`{"token":"tok"}`, `{"token":"tok","event":null}`, `{}`} {
			p, err := DecodePayload([]byte(body))
			require.NoError(t, err, body)
			assert.IsType(t, NoEventPayload{}, p, body)
		}
	})

	malformed := map[string]string{
		"empty":               ``,
		"whitespace":          "  \n",
		"not json":            `token=abc`,
		"array":               `[{"challenge":"x"}]`,
		"null":                `null`,
		"truncated":           `{"token":"tok"`,
		"event not object":    `{"token":"tok","event":"link_shared"}`,
		"event without type":  `{"token":"tok","event":{"channel":"C1"}}`,
		"event type not text": `{"token":"tok","event":{"type":7}}`,
		"links not a list":    `{"token":"tok","event":{"type":"link_shared","links":"http://a.test"}}`,
	}
	for name, body := range malformed {
		t.Run("malformed "+name, func(t *testing.T) {
			p, err := DecodePayload([]byte(body))
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}
