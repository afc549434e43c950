package dispatcher

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"music_police/internal/bot"
	"music_police/internal/inspector"
	"music_police/internal/logger"
	"music_police/internal/model"
)

// NoRetryHeader tells Slack not to redeliver the event
const NoRetryHeader = "X-Slack-No-Retry"

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeJSON = "application/json"

	noEventBody = "[NO EVENT IN SLACK REQUEST] These are not the droids you're looking for."
)

type retryKey struct{}

// Retry describes a Slack redelivery, from the X-Slack-Retry-* request headers
type Retry struct {
	Num    string
	Reason string
}

// WithRetry marks ctx as a redelivery whose side effects should be skipped
func WithRetry(ctx context.Context, r Retry) context.Context {
	return context.WithValue(ctx, retryKey{}, r)
}

// RetryFromContext returns the redelivery attached by WithRetry
func RetryFromContext(ctx context.Context) (Retry, bool) {
	r, ok := ctx.Value(retryKey{}).(Retry)
	return r, ok
}

var (
	ErrVerificationFailed = errors.New("invalid verification token")
	// ErrUnhandledEventType is a soft failure: the request is still acknowledged with 200
	ErrUnhandledEventType = errors.New("no handler for event type")
	ErrNoEventPresent     = errors.New("no event in request")
)

// LinkInspector checks shared links for the watched keyword
type LinkInspector interface {
	InspectLinks(ctx context.Context, urls []string) []inspector.Result
}

// Messenger posts as the bot on behalf of a team
type Messenger interface {
	ContextForTeam(ctx context.Context, teamID string) context.Context
	PostMessage(ctx context.Context, channel string, text string) (bot.Ack, error)
}

// Result is the HTTP outcome of one inbound request
type Result struct {
	StatusCode  int
	Body        string
	ContentType string
	Headers     map[string]string
	// Err is the classified cause of a non-success outcome, nil otherwise
	Err error
}

// Dispatcher validates inbound Events API payloads and routes them to a reaction
type Dispatcher struct {
	verificationToken string
	warningText       string
	links             LinkInspector
	messenger         Messenger
}

// New creates a Dispatcher
func New(verificationToken string, warningText string, links LinkInspector, messenger Messenger) *Dispatcher {
	return &Dispatcher{
		verificationToken: verificationToken,
		warningText:       warningText,
		links:             links,
		messenger:         messenger,
	}
}

// Handle produces a Result for every body, whatever its shape.
// Order: decode, challenge, token check, event type. A redelivered link_shared
// event (see WithRetry) is acknowledged without inspecting or posting again.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) Result {
	payload, err := model.DecodePayload(body)
	if err != nil {
		return noRetry(http.StatusBadRequest, "invalid event payload", err)
	}

	// url_verification is answered before the token check
	if challenge, ok := payload.(model.ChallengePayload); ok {
		return Result{
			StatusCode:  http.StatusOK,
			Body:        challenge.Challenge,
			ContentType: contentTypeJSON,
		}
	}

	if !d.verify(payload.Meta().Token) {
		return noRetry(http.StatusForbidden, "Invalid Slack verification token", ErrVerificationFailed)
	}

	switch p := payload.(type) {
	case model.LinkSharedEvent:
		if retry, ok := RetryFromContext(ctx); ok {
			logger.GetLogger().Info("slack retry skipped",
				zap.String("event_id", p.EventID),
				zap.String("retry_num", retry.Num),
				zap.String("retry_reason", retry.Reason))
			return noRetry(http.StatusOK, "ok (retry skipped)", nil)
		}
		return d.handleLinkShared(ctx, p)
	case model.OtherEvent:
		return noRetry(http.StatusOK,
			fmt.Sprintf("You have not added an event handler for the %s", p.EventType),
			fmt.Errorf("%w: %s", ErrUnhandledEventType, p.EventType))
	case model.NoEventPayload:
		return noRetry(http.StatusNotFound, noEventBody, ErrNoEventPresent)
	default:
		return noRetry(http.StatusBadRequest, "invalid event payload",
			fmt.Errorf("%w: unexpected payload %T", model.ErrMalformedPayload, payload))
	}
}

func (d *Dispatcher) verify(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(d.verificationToken)) == 1
}

// handleLinkShared warns the channel once per matching link. Post failures are logged only.
func (d *Dispatcher) handleLinkShared(ctx context.Context, ev model.LinkSharedEvent) Result {
	log := logger.GetLogger().With(
		zap.String("team_id", ev.TeamID),
		zap.String("event_id", ev.EventID),
		zap.String("channel", ev.Event.Channel))

	results := d.links.InspectLinks(ctx, ev.URLs())

	matched := 0
	postCtx := d.messenger.ContextForTeam(ctx, ev.TeamID)
	for _, res := range results {
		if !res.Matched {
			continue
		}
		matched++
		if _, err := d.messenger.PostMessage(postCtx, ev.Event.Channel, d.warningText); err != nil {
			log.Error("failed to post warning", zap.String("url", res.URL), zap.Error(err))
			continue
		}
		log.Info("posted warning", zap.String("url", res.URL), zap.String("title", res.Title))
	}

	log.Info("link_shared handled", zap.Int("links", len(results)), zap.Int("matched", matched))
	return noRetry(http.StatusOK, "ok", nil)
}

func noRetry(status int, body string, err error) Result {
	return Result{
		StatusCode:  status,
		Body:        body,
		ContentType: contentTypeText,
		Headers:     map[string]string{NoRetryHeader: "1"},
		Err:         err,
	}
}
