package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/store"
)

const (
	walletA = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	walletB = "0x00000000000000000000000000000000000000000000000000000000000000bb"
)

func eventPayload(t *testing.T, typ farm.EventType, wallet string) string {
	t.Helper()
	data, err := json.Marshal(store.EventRecord{Type: string(typ), Wallet: wallet, Amount: "5"})
	require.NoError(t, err)
	return string(data)
}

func startHub(t *testing.T) (*Hub, *store.Cache, string) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	cache := store.NewMemoryCache(logger, nil)
	hub := NewHub(cache, []string{"http://localhost:3000"}, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, cache, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, req WSSubscriptionRequest) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
	ack := readMessage(t, conn)
	require.Equal(t, req.Type+"d", ack.Type)
}

func TestHubRelaysSubscribedTopics(t *testing.T) {
	_, cache, url := startHub(t)
	conn := dial(t, url)

	subscribe(t, conn, WSSubscriptionRequest{Type: "subscribe", Topics: []string{TopicPools}})

	require.NoError(t, cache.Publish(context.Background(), store.EventChannel(farm.EventPoolCreated), `{"type":"POOL_CREATED"}`))
	require.NoError(t, cache.Publish(context.Background(), store.ChannelPoolSnapshot, `[{"pool_id":1}]`))

	msg := readMessage(t, conn)
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, store.ChannelPoolSnapshot, msg.Topic)
	assert.JSONEq(t, `[{"pool_id":1}]`, string(msg.Data))
}

func TestHubFiltersWalletEvents(t *testing.T) {
	_, cache, url := startHub(t)
	conn := dial(t, url)

	subscribe(t, conn, WSSubscriptionRequest{
		Type:    "subscribe",
		Topics:  []string{"events:USER_STAKED"},
		Address: walletA,
	})

	ctx := context.Background()
	channel := store.EventChannel(farm.EventUserStaked)
	require.NoError(t, cache.Publish(ctx, channel, eventPayload(t, farm.EventUserStaked, walletB)))
	require.NoError(t, cache.Publish(ctx, channel, eventPayload(t, farm.EventUserStaked, walletA)))

	msg := readMessage(t, conn)
	var ev store.EventRecord
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, walletA, ev.Wallet)
}

func TestHubUnsubscribe(t *testing.T) {
	_, cache, url := startHub(t)
	conn := dial(t, url)

	subscribe(t, conn, WSSubscriptionRequest{Type: "subscribe", Topics: []string{TopicPools, TopicEvents}})
	subscribe(t, conn, WSSubscriptionRequest{Type: "unsubscribe", Topics: []string{TopicEvents}})

	ctx := context.Background()
	require.NoError(t, cache.Publish(ctx, store.EventChannel(farm.EventRateChanged), `{"type":"RATE_CHANGED"}`))
	require.NoError(t, cache.Publish(ctx, store.ChannelPoolSnapshot, `[]`))

	msg := readMessage(t, conn)
	assert.Equal(t, store.ChannelPoolSnapshot, msg.Topic)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	_, _, url := startHub(t)

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
