package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music_police/internal/bot"
	"music_police/internal/inspector"
)

const (
	testToken   = "verification-token"
	testWarning = "WARNING!! ANDREW IS POSTING GRATEFUL DEAD AGAIN!!"
)

// fakeInspector matches any link whose URL contains "dead"
type fakeInspector struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeInspector) InspectLinks(_ context.Context, urls []string) []inspector.Result {
	f.mu.Lock()
	f.calls = append(f.calls, urls)
	f.mu.Unlock()

	results := make([]inspector.Result, len(urls))
	for i, raw := range urls {
		link := inspector.NormalizeURL(raw)
		switch {
		case strings.Contains(link, "broken"):
			results[i] = inspector.Result{URL: link, Err: inspector.ErrFetch}
		case strings.Contains(link, "dead"):
			results[i] = inspector.Result{URL: link, Title: "Grateful Dead", Matched: true}
		default:
			results[i] = inspector.Result{URL: link, Title: "Cat Video"}
		}
	}
	return results
}

type post struct {
	Channel string
	Text    string
	Session bot.Session
}

type fakeMessenger struct {
	mu       sync.Mutex
	posts    []post
	teams    []string
	failures int
}

func (f *fakeMessenger) ContextForTeam(ctx context.Context, teamID string) context.Context {
	f.mu.Lock()
	f.teams = append(f.teams, teamID)
	f.mu.Unlock()
	return bot.WithSession(ctx, bot.Session{TeamID: teamID, Token: "xoxb-" + teamID})
}

func (f *fakeMessenger) PostMessage(ctx context.Context, channel string, text string) (bot.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, _ := bot.SessionFromContext(ctx)
	f.posts = append(f.posts, post{Channel: channel, Text: text, Session: session})
	if f.failures > 0 {
		f.failures--
		return bot.Ack{}, errors.New("channel_not_found")
	}
	return bot.Ack{Channel: channel, Timestamp: "1.0"}, nil
}

func newTestDispatcher() (*Dispatcher, *fakeInspector, *fakeMessenger) {
	links := &fakeInspector{}
	messenger := &fakeMessenger{}
	return New(testToken, testWarning, links, messenger), links, messenger
}

func linkShared(token string, urls ...string) []byte {
	links := make([]string, 0, len(urls))
	for _, u := range urls {
		links = append(links, `{"domain":"example.test","url":"`+u+`"}`)
	}
	return []byte(`{"token":"` + token + `","team_id":"T1","api_app_id":"A1","event_id":"Ev1","type":"event_callback",
		"event":{"type":"link_shared","channel":"C42","user":"U1","message_ts":"123.456","links":[` + strings.Join(links, ",") + `]}}`)
}

func TestHandle_Challenge(t *testing.T) {
	d, links, messenger := newTestDispatcher()

	for _, token := range []string{testToken, "wrong", ""} {
		res := d.Handle(context.Background(),
			[]byte(`{"token":"`+token+`","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`))
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", res.Body)
		assert.Equal(t, "application/json", res.ContentType)
		assert.NotContains(t, res.Headers, NoRetryHeader)
		assert.NoError(t, res.Err)
	}
	assert.Empty(t, links.calls)
	assert.Empty(t, messenger.posts)
}

func TestHandle_InvalidToken(t *testing.T) {
	d, links, messenger := newTestDispatcher()

	res := d.Handle(context.Background(), linkShared("wrong", "<http://a.test/dead>"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "Invalid Slack verification token", res.Body)
	assert.Equal(t, "1", res.Headers[NoRetryHeader])
	assert.ErrorIs(t, res.Err, ErrVerificationFailed)

	assert.Empty(t, links.calls, "no link may be fetched for an unverified request")
	assert.Empty(t, messenger.posts)
	assert.Empty(t, messenger.teams)
}

func TestHandle_LinkShared(t *testing.T) {
	d, links, messenger := newTestDispatcher()

	res := d.Handle(context.Background(), linkShared(testToken, "<http://a.test/dead>", "<http://b.test/cat>"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", res.Body)
	assert.Equal(t, "1", res.Headers[NoRetryHeader])
	assert.NoError(t, res.Err)

	require.Len(t, links.calls, 1)
	assert.Equal(t, []string{"<http://a.test/dead>", "<http://b.test/cat>"}, links.calls[0])

	require.Len(t, messenger.posts, 1)
	assert.Equal(t, post{
		Channel: "C42",
		Text:    testWarning,
		Session: bot.Session{TeamID: "T1", Token: "xoxb-T1"},
	}, messenger.posts[0])
}

func TestHandle_LinkSharedPostsPerMatch(t *testing.T) {
	d, _, messenger := newTestDispatcher()

	res := d.Handle(context.Background(), linkShared(testToken, "<http://a.test/dead>", "<http://b.test/dead-live>"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, messenger.posts, 2)
}

func TestHandle_LinkSharedNoMatch(t *testing.T) {
	d, _, messenger := newTestDispatcher()

	res := d.Handle(context.Background(), linkShared(testToken, "<http://b.test/cat>"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", res.Body)
	assert.Empty(t, messenger.posts)
}

func TestHandle_LinkSharedIsolatesFailures(t *testing.T) {
	d, _, messenger := newTestDispatcher()

	res := d.Handle(context.Background(),
		linkShared(testToken, "<http://a.test/broken>", "<http://b.test/cat>", "<http://c.test/dead>"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, messenger.posts, 1)
	assert.Equal(t, "C42", messenger.posts[0].Channel)
}

func TestHandle_LinkSharedPostFailure(t *testing.T) {
	d, _, messenger := newTestDispatcher()
	messenger.failures = 1

	res := d.Handle(context.Background(), linkShared(testToken, "<http://a.test/dead>", "<http://b.test/dead>"))
	assert.Equal(t, http.StatusOK, res.StatusCode, "post failures are not reported to Slack")
	assert.Equal(t, "ok", res.Body)
	assert.NoError(t, res.Err)
	assert.Len(t, messenger.posts, 2, "a failed post must not stop the next one")
}

func TestHandle_OtherEvent(t *testing.T) {
	d, links, messenger := newTestDispatcher()

	res := d.Handle(context.Background(),
		[]byte(`{"token":"`+testToken+`","team_id":"T1","event":{"type":"message","text":"hi"}}`))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "You have not added an event handler for the message", res.Body)
	assert.Equal(t, "1", res.Headers[NoRetryHeader])
	assert.ErrorIs(t, res.Err, ErrUnhandledEventType)
	assert.Empty(t, links.calls)
	assert.Empty(t, messenger.posts)
}

func TestHandle_NoEvent(t *testing.T) {
	d, _, _ := newTestDispatcher()

	res := d.Handle(context.Background(), []byte(`{"token":"`+testToken+`","team_id":"T1"}`))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "[NO EVENT IN SLACK REQUEST] These are not the droids you're looking for.", res.Body)
	assert.Equal(t, "1", res.Headers[NoRetryHeader])
	assert.ErrorIs(t, res.Err, ErrNoEventPresent)
}

func TestHandle_Malformed(t *testing.T) {
	d, links, messenger := newTestDispatcher()

	for name, body := range map[string]string{
		"empty":           "",
		"not json":        "token=abc",
		"truncated":       `{"token":`,
		"array":           `[1,2,3]`,
		"event not obj":   `{"token":"` + testToken + `","event":"link_shared"}`,
		"event no type":   `{"token":"` + testToken + `","event":{"channel":"C1"}}`,
		"event bad links": `{"token":"` + testToken + `","event":{"type":"link_shared","links":"nope"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			first := d.Handle(context.Background(), []byte(body))
			second := d.Handle(context.Background(), []byte(body))
			assert.Equal(t, http.StatusBadRequest, first.StatusCode)
			assert.Equal(t, "1", first.Headers[NoRetryHeader])
			assert.Error(t, first.Err)
			assert.Equal(t, first.StatusCode, second.StatusCode)
			assert.Equal(t, first.Body, second.Body)
		})
	}
	assert.Empty(t, links.calls)
	assert.Empty(t, messenger.posts)
}

func TestHandle_Retry(t *testing.T) {
	d, links, messenger := newTestDispatcher()
	ctx := WithRetry(context.Background(), Retry{Num: "2", Reason: "http_timeout"})

	res := d.Handle(ctx, linkShared("wrong", "<http://a.test/dead>"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode, "retries are verified like first deliveries")
	assert.ErrorIs(t, res.Err, ErrVerificationFailed)

	res = d.Handle(ctx, []byte(`{"token":"wrong","challenge":"c-1"}`))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "c-1", res.Body)

	res = d.Handle(ctx, []byte(`{"token":"`+testToken+`","event":{"type":"message"}}`))
	assert.Equal(t, "You have not added an event handler for the message", res.Body)

	res = d.Handle(ctx, []byte(`{"token":"`+testToken+`"}`))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = d.Handle(ctx, linkShared(testToken, "<http://a.test/dead>"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok (retry skipped)", res.Body)
	assert.Equal(t, "1", res.Headers[NoRetryHeader])
	assert.NoError(t, res.Err)
	assert.Empty(t, links.calls, "a redelivered event is not inspected again")
	assert.Empty(t, messenger.posts)
}

func TestHandle_NonStringChallenge(t *testing.T) {
	d, _, _ := newTestDispatcher()

	res := d.Handle(context.Background(), []byte(`{"challenge":12345}`))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "12345", res.Body)
}
