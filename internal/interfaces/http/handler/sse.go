package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SSEMessage represents a message sent to an event stream client
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

type sseConfig struct {
	heartbeat time.Duration
}

func defaultSSEConfig() sseConfig {
	return sseConfig{heartbeat: 30 * time.Second}
}

// latest holds at most one pending snapshot. A newer snapshot replaces an
// unsent one, since every snapshot carries the full state.
type latest struct {
	mu sync.Mutex
	ch chan any
}

func newLatest() *latest {
	return &latest{ch: make(chan any, 1)}
}

func (l *latest) offer(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.ch:
	default:
	}
	l.ch <- v
}

// streamSnapshots writes every snapshot published through subscribe as an SSE
// event until the client disconnects
func streamSnapshots(c *gin.Context, cfg sseConfig, logger *zap.Logger, event string, subscribe func(func(any)) func()) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	clientID := uuid.NewString()
	pending := newLatest()
	unsubscribe := subscribe(pending.offer)
	defer unsubscribe()

	logger.Debug("SSE client connected", zap.String("client_id", clientID))
	sendEvent(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"client_id":%q,"timestamp":%d}`, clientID, time.Now().Unix()),
	})
	c.Writer.Flush()

	ticker := time.NewTicker(cfg.heartbeat)
	defer ticker.Stop()

	var seq int64
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("SSE client disconnected", zap.String("client_id", clientID))
			return
		case <-ticker.C:
			sendEvent(c.Writer, SSEMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
			c.Writer.Flush()
		case v := <-pending.ch:
			data, err := json.Marshal(v)
			if err != nil {
				logger.Error("Failed to marshal SSE event", zap.Error(err))
				continue
			}
			seq++
			sendEvent(c.Writer, SSEMessage{Event: event, Data: string(data), ID: strconv.FormatInt(seq, 10)})
			c.Writer.Flush()
		}
	}
}

// sendEvent writes an SSE event to the response writer
func sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}
