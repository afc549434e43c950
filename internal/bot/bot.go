package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"music_police/internal/logger"
	"music_police/internal/model"
	"music_police/internal/storage"
)

var (
	// ErrAuthExchange is returned when Slack rejects an OAuth code or answers without a team token
	ErrAuthExchange = errors.New("oauth exchange failed")
	// ErrPost is returned when a message cannot be posted
	ErrPost = errors.New("failed to post message")
)

// Identity is how the bot presents itself and authenticates its app
type Identity struct {
	Name         string
	IconEmoji    string
	ClientID     string
	ClientSecret string
	Scope        string
	RedirectURI  string
}

// Session is the token outbound calls are made with
type Session struct {
	TeamID string
	Token  string
}

// Ack identifies a posted message
type Ack struct {
	Channel   string
	Timestamp string
}

type sessionKey struct{}

// WithSession returns a context whose outbound calls use s
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by WithSession
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// Bot owns the app identity and the outbound Slack calls
type Bot struct {
	identity   Identity
	teams      storage.TeamStore
	httpClient *http.Client

	// mu serialises installs; current is read without it
	mu      sync.Mutex
	current atomic.Pointer[Session]
}

// Option configures a Bot
type Option func(*Bot)

// WithHTTPClient sets the client used for every Slack API call
func WithHTTPClient(client *http.Client) Option {
	return func(b *Bot) {
		b.httpClient = client
	}
}

// New creates a Bot whose session starts on token
func New(identity Identity, token string, teams storage.TeamStore, opts ...Option) *Bot {
	b := &Bot{
		identity:   identity,
		teams:      teams,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.current.Store(&Session{Token: token})
	return b
}

// Identity returns the bot identity
func (b *Bot) Identity() Identity {
	return b.identity
}

// Session returns the last committed session
func (b *Bot) Session() Session {
	return *b.current.Load()
}

// ExchangeCode trades a temporary OAuth code for the team's bot token,
// stores it and makes it the current session.
func (b *Bot) ExchangeCode(ctx context.Context, code string) (model.TeamCredential, error) {
	if code == "" {
		return model.TeamCredential{}, fmt.Errorf("%w: missing code", ErrAuthExchange)
	}

	resp, err := slack.GetOAuthV2ResponseContext(ctx, b.httpClient,
		b.identity.ClientID, b.identity.ClientSecret, code, b.identity.RedirectURI)
	if err != nil {
		return model.TeamCredential{}, fmt.Errorf("%w: %v", ErrAuthExchange, err)
	}
	if resp.Team.ID == "" || resp.AccessToken == "" {
		return model.TeamCredential{}, fmt.Errorf("%w: response has no team id or access token", ErrAuthExchange)
	}

	cred := model.TeamCredential{
		TeamID:      resp.Team.ID,
		TeamName:    resp.Team.Name,
		BotUserID:   resp.BotUserID,
		BotToken:    resp.AccessToken,
		Scope:       resp.Scope,
		InstalledAt: time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.teams.PutTeam(ctx, cred); err != nil {
		return model.TeamCredential{}, fmt.Errorf("%w: %w", ErrAuthExchange, err)
	}
	b.current.Store(&Session{TeamID: cred.TeamID, Token: cred.BotToken})

	logger.GetLogger().Info("team installed",
		zap.String("team_id", cred.TeamID),
		zap.String("team_name", cred.TeamName),
		zap.String("scope", cred.Scope))
	return cred, nil
}

// ContextForTeam attaches the stored session of teamID to ctx. Unknown teams keep ctx unchanged.
func (b *Bot) ContextForTeam(ctx context.Context, teamID string) context.Context {
	if teamID == "" {
		return ctx
	}
	cred, err := b.teams.GetTeam(ctx, teamID)
	if err != nil {
		if !errors.Is(err, storage.ErrTeamNotFound) {
			logger.GetLogger().Warn("failed to load team credential", zap.String("team_id", teamID), zap.Error(err))
		}
		return ctx
	}
	return WithSession(ctx, Session{TeamID: cred.TeamID, Token: cred.BotToken})
}

// PostMessage posts text to channel as the bot, using the session in ctx or the current one
func (b *Bot) PostMessage(ctx context.Context, channel string, text string) (Ack, error) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		session = b.Session()
	}
	if session.Token == "" {
		return Ack{}, fmt.Errorf("%w: no bot token", ErrPost)
	}

	api := slack.New(session.Token, slack.OptionHTTPClient(b.httpClient))
	channelID, timestamp, err := api.PostMessageContext(ctx,
		channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionUsername(b.identity.Name),
		slack.MsgOptionIconEmoji(b.identity.IconEmoji),
	)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrPost, err)
	}
	return Ack{Channel: channelID, Timestamp: timestamp}, nil
}
