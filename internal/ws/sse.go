package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/metrics"
	"github.com/leafsii/leafsii-farm/internal/store"
)

const sseHeartbeat = 30 * time.Second

type SSEHandler struct {
	cache          *store.Cache
	allowedOrigins []string
	heartbeat      time.Duration
	logger         *zap.SugaredLogger
	metrics        *metrics.Metrics
}

func NewSSEHandler(cache *store.Cache, allowedOrigins []string, logger *zap.SugaredLogger, metrics *metrics.Metrics) *SSEHandler {
	return &SSEHandler{
		cache:          cache,
		allowedOrigins: allowedOrigins,
		heartbeat:      sseHeartbeat,
		logger:         logger,
		metrics:        metrics,
	}
}

// HandleSSE streams pub/sub updates as server-sent events.
//
// Query parameters: topics (comma separated, default "events,pools") and
// address, which narrows wallet events to one wallet.
func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if origin := r.Header.Get("Origin"); origin != "" && originAllowed(origin, h.allowedOrigins) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	topics := parseTopics(r.URL.Query().Get("topics"))
	var wallet farm.Address
	if raw := r.URL.Query().Get("address"); raw != "" {
		parsed, err := farm.ParseAddress(raw)
		if err != nil {
			http.Error(w, "invalid address", http.StatusBadRequest)
			return
		}
		wallet = parsed
	}

	channels := channelsFor(topics)
	if len(channels) == 0 {
		channels = channelsFor([]string{TopicEvents, TopicPools})
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.cache.Subscribe(ctx, channels...)
	defer sub.Close()

	h.metrics.IncrementConnections(ctx)
	defer h.metrics.DecrementConnections(context.Background())

	h.logger.Debugw("SSE connection established", "topics", topics, "wallet", wallet)
	h.sendEvent(w, flusher, "connected", "0", map[string]interface{}{
		"channels": channels,
	})

	h.stream(ctx, w, flusher, sub, wallet)
}

func (h *SSEHandler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sub store.Subscription, wallet farm.Address) {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, flusher, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !matchesWallet(msg.Channel, msg.Payload, wallet) {
				continue
			}

			var data interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
				h.logger.Warnw("Failed to parse message payload", "channel", msg.Channel, "error", err)
				continue
			}
			h.sendEvent(w, flusher, channelToEventType(msg.Channel), msg.Channel, data)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType, id string, data interface{}) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorw("Failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "id: %s\n", id)
	fmt.Fprintf(w, "data: %s\n\n", dataBytes)
	flusher.Flush()
}

func parseTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
