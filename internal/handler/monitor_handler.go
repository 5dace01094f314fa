package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const keepAliveInterval = 30 * time.Second

// ResultSubscriber streams newly recorded results.
type ResultSubscriber interface {
	Subscribe(ctx context.Context) <-chan model.ResultRecord
}

// MonitorHandler pushes new submissions to the admin dashboard over SSE.
type MonitorHandler struct {
	feed ResultSubscriber
	log  zerolog.Logger
}

func NewMonitorHandler(feed ResultSubscriber, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		feed: feed,
		log:  log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ResultsStreamSSE godoc
// GET /api/v1/admin/results/stream
func (h *MonitorHandler) ResultsStreamSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	results := h.feed.Subscribe(reqCtx)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Msg("Admin attached to results feed")

	c.SSEvent("ready", gin.H{"type": "ready"})
	c.Writer.Flush()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin detached from results feed")
			return

		case rec, ok := <-results:
			if !ok {
				return
			}
			c.SSEvent("result", rec)
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}
