package model

import (
	"time"

	"github.com/slack-go/slack/slackevents"
)

// LinkSharedType is the inner event type Slack sends when a link is shared
const LinkSharedType = "link_shared"

// Envelope holds the outer fields Slack sends with every Events API request
type Envelope struct {
	Token    string `json:"token"`
	TeamID   string `json:"team_id"`
	APIAppID string `json:"api_app_id"`
	EventID  string `json:"event_id"`
	Type     string `json:"type"`
}

// Meta returns the outer request fields
func (e Envelope) Meta() Envelope {
	return e
}

// Payload is one decoded inbound request. Its concrete type is one of
// ChallengePayload, LinkSharedEvent, OtherEvent or NoEventPayload.
type Payload interface {
	Meta() Envelope
	isPayload()
}

// ChallengePayload is the url_verification handshake
type ChallengePayload struct {
	Envelope
	Challenge string
}

// LinkSharedEvent is an event callback carrying a link_shared event
type LinkSharedEvent struct {
	Envelope
	Event slackevents.LinkSharedEvent
}

// OtherEvent is an event callback whose inner type has no handler
type OtherEvent struct {
	Envelope
	EventType string
}

// NoEventPayload is a request with neither a challenge nor an event
type NoEventPayload struct {
	Envelope
}

func (ChallengePayload) isPayload() {}
func (LinkSharedEvent) isPayload()  {}
func (OtherEvent) isPayload()       {}
func (NoEventPayload) isPayload()   {}

// URLs returns the raw url of every shared link, in event order
func (e LinkSharedEvent) URLs() []string {
	urls := make([]string, 0, len(e.Event.Links))
	for _, link := range e.Event.Links {
		urls = append(urls, link.URL)
	}
	return urls
}

// TeamCredential is the bot identity issued to one workspace by the OAuth exchange
type TeamCredential struct {
	TeamID      string    `json:"team_id"`
	TeamName    string    `json:"team_name"`
	BotUserID   string    `json:"bot_user_id"`
	BotToken    string    `json:"bot_token"`
	Scope       string    `json:"scope"`
	InstalledAt time.Time `json:"installed_at"`
}
