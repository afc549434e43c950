package logger

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// bodyLimit caps how much of each body lands in a request log line
	bodyLimit = 16 * 1024
	truncated = "TRUNCATED..."

	// RequestIDHeader is echoed on every response
	RequestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"

	redacted = "REDACTED"
)

// secretKeys never reach the log: the Slack verification token, the OAuth code and the client secret
var secretKeys = map[string]bool{"token": true, "code": true, "client_secret": true}

var jsonSecret = regexp.MustCompile(`("(?:token|code|client_secret)"\s*:\s*)"(?:[^"\\]|\\.)*"`)

// requestRecord is the per-request log line
type requestRecord struct {
	RequestID    string
	Method       string
	Path         string
	Query        string
	RequestBody  string
	ResponseBody string
	Status       int
	Start        time.Time
	Stack        string
}

func (r *requestRecord) fields() []zap.Field {
	fields := []zap.Field{
		zap.String("type", "request"),
		zap.String(requestIDKey, r.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.String("query", r.Query),
		zap.Int("status", r.Status),
		zap.Int64("duration_ms", time.Since(r.Start).Milliseconds()),
		zap.String("request_body", truncate(r.RequestBody)),
		zap.String("response_body", truncate(r.ResponseBody)),
	}
	if r.Stack != "" {
		fields = append(fields, zap.String("stack", r.Stack))
	}
	return fields
}

func truncate(s string) string {
	if len(s) <= bodyLimit {
		return s
	}
	return s[:bodyLimit] + truncated
}

// GinLogMiddleware writes one structured log line per request, even when a later handler panics
func GinLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		respLogWriter := &respLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = respLogWriter

		record := initRecord(c)
		c.Set(requestIDKey, record.RequestID)
		c.Header(RequestIDHeader, record.RequestID)

		defer func() {
			if r := recover(); r != nil {
				record.Status = 500
				record.Stack = string(debug.Stack())
				GetLogger().Error("request panicked", record.fields()...)
				// throw the panic to the later middlewares
				panic(r)
			}
		}()

		c.Next()

		record.Status = c.Writer.Status()
		record.ResponseBody = respLogWriter.body.String()
		GetLogger().Info("request", record.fields()...)
	}
}

// RequestID returns the id GinLogMiddleware assigned to the request, or "" outside of it
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

type respLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w respLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w respLogWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func initRecord(c *gin.Context) *requestRecord {
	record := &requestRecord{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  redactQuery(c.Request.URL.RawQuery),
		Start:  time.Now(),
	}

	if lc, ok := lambdacontext.FromContext(c.Request.Context()); ok && lc.AwsRequestID != "" {
		record.RequestID = lc.AwsRequestID
	} else {
		record.RequestID = uuid.NewString()
	}

	if c.Request.Body != nil {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			GetLogger().Warn("failed to read request body for logging", zap.Error(err))
		}
		// reattach request body for later use
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		record.RequestBody = redactBody(string(body), c.ContentType())
	}
	return record
}

func redactQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	found := false
	for key := range values {
		if secretKeys[key] {
			values[key] = []string{redacted}
			found = true
		}
	}
	if !found && err == nil {
		return raw
	}
	return values.Encode()
}

func redactBody(body string, contentType string) string {
	if contentType == "application/x-www-form-urlencoded" {
		return redactQuery(body)
	}
	return jsonSecret.ReplaceAllString(body, `$1"`+redacted+`"`)
}
