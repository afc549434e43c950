package handler

import (
	"github.com/gin-gonic/gin"

	"music_police/internal/dispatcher"
)

// MarkSlackRetry tags redelivered events on the request context. The dispatcher
// still decodes and verifies them, then acknowledges link_shared without acting.
func MarkSlackRetry() gin.HandlerFunc {
	return func(c *gin.Context) {
		if num := c.GetHeader("X-Slack-Retry-Num"); num != "" {
			retry := dispatcher.Retry{Num: num, Reason: c.GetHeader("X-Slack-Retry-Reason")}
			c.Request = c.Request.WithContext(dispatcher.WithRetry(c.Request.Context(), retry))
		}
		c.Next()
	}
}
