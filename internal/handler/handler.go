package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"music_police/internal/bot"
	"music_police/internal/dispatcher"
	"music_police/internal/logger"
	"music_police/internal/model"
)

// EventDispatcher turns a raw Events API body into a response
type EventDispatcher interface {
	Handle(ctx context.Context, body []byte) dispatcher.Result
}

// Installer completes the OAuth install flow
type Installer interface {
	ExchangeCode(ctx context.Context, code string) (model.TeamCredential, error)
	Identity() bot.Identity
}

type SlackHandler struct {
	events    EventDispatcher
	installer Installer
}

func NewSlackHandler(events EventDispatcher, installer Installer) *SlackHandler {
	return &SlackHandler{
		events:    events,
		installer: installer,
	}
}

// HandleEvents serves /listening
func (h *SlackHandler) HandleEvents(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		// an unreadable body decodes as malformed
		logger.GetLogger().Warn("failed to read request body", zap.Error(err))
		body = nil
	}

	res := h.events.Handle(c.Request.Context(), body)
	if res.Err != nil {
		logger.GetLogger().Warn("event not handled",
			zap.String("request_id", logger.RequestID(c)),
			zap.Int("status", res.StatusCode),
			zap.Error(res.Err))
	}

	for key, value := range res.Headers {
		c.Header(key, value)
	}
	c.Data(res.StatusCode, res.ContentType, []byte(res.Body))
}

// HandleThanks serves the OAuth redirect. The page always renders; a failed install gets the degraded copy.
func (h *SlackHandler) HandleThanks(c *gin.Context) {
	log := logger.GetLogger().With(zap.String("request_id", logger.RequestID(c)))

	if oauthError := c.Query("error"); oauthError != "" {
		log.Info("oauth install declined", zap.String("error", oauthError))
		c.HTML(http.StatusOK, "thanks.html", gin.H{"Installed": false, "Reason": oauthError})
		return
	}

	code := c.Query("code")
	if code == "" {
		code = c.PostForm("code")
	}

	cred, err := h.installer.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		log.Error("oauth exchange failed", zap.Error(err))
		c.HTML(http.StatusOK, "thanks.html", gin.H{"Installed": false})
		return
	}

	c.HTML(http.StatusOK, "thanks.html", gin.H{
		"Installed": true,
		"TeamName":  cred.TeamName,
		"BotName":   h.installer.Identity().Name,
	})
}

// HandleInstall renders the "Add to Slack" page
func (h *SlackHandler) HandleInstall(c *gin.Context) {
	identity := h.installer.Identity()
	c.HTML(http.StatusOK, "install.html", gin.H{
		"ClientID":    identity.ClientID,
		"Scope":       identity.Scope,
		"RedirectURI": identity.RedirectURI,
		"BotName":     identity.Name,
	})
}

func HandleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
