package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/middleware"
	"github.com/certwise/certprep-backend/internal/response"
)

const keepAliveInterval = 15 * time.Second

// EventsHandler relays completion events from Redis pub/sub to operations
// dashboards via SSE.
type EventsHandler struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(rdb *redis.Client, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		rdb: rdb,
		log: log.With().Str("component", "events_handler").Logger(),
	}
}

// CompletionsSSE godoc
// GET /api/v1/events/completions
// Streams one SSE event per completed attempt, with keep-alive comments so
// proxies do not cut the idle stream.
func (h *EventsHandler) CompletionsSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.CompletionsChannel())
	defer pubsub.Close()

	// Confirm the subscription before committing to the stream content type.
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Msg("Completions subscribe failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable)
		return
	}
	events := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	h.log.Info().Msg("Operator connected to completions feed")

	c.Writer.Write([]byte(": stream open\n\n"))
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Operator disconnected from completions feed")
			return
		case msg, open := <-events:
			if !open {
				return
			}
			c.Writer.Write([]byte("event: completion\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		case <-keepAlive.C:
			c.Writer.Write([]byte(": keep-alive\n\n"))
			c.Writer.Flush()
		}
	}
}
