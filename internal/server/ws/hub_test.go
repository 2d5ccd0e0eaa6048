package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/store/memory"
)

// subscribeSignalBus reports each Subscribe so tests publish only after the
// hub is listening.
type subscribeSignalBus struct {
	*memory.Bus
	subscribed chan string
}

func (b *subscribeSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch, err := b.Bus.Subscribe(ctx, channel)
	b.subscribed <- channel
	return ch, err
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubFiltersByAccount(t *testing.T) {
	bus := &subscribeSignalBus{Bus: memory.NewBus(0), subscribed: make(chan string, len(channels))}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "Paper"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()
	for range channels {
		<-bus.subscribed
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?account_id=acct-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readEnvelope(t, conn)
	require.Equal(t, "hello", hello.Type)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(hello.Payload, &meta))
	require.Equal(t, "paper", meta["mode"])
	require.Equal(t, "acct-1", meta["account_id"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	pub := context.Background()
	require.NoError(t, bus.Publish(pub, domain.ChannelOrders, []byte(`{"account_id":"acct-2","order_id":"x"}`)))
	require.NoError(t, bus.Publish(pub, domain.ChannelOrders, []byte(`{"account_id":"acct-1","order_id":"y"}`)))

	evt := readEnvelope(t, conn)
	require.Equal(t, "event", evt.Type)
	require.Equal(t, domain.ChannelOrders, evt.Channel)
	require.JSONEq(t, `{"account_id":"acct-1","order_id":"y"}`, string(evt.Payload))
}

func TestApplySubscriptionIgnoresUnknownChannels(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelOrders: true}}
	c.applySubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelOrders}})
	c.applySubscription(subscribeMsg{Action: "subscribe", Channels: []string{"prices", domain.ChannelPositions}})

	require.False(t, c.wants(broadcastMsg{channel: domain.ChannelOrders}))
	require.True(t, c.wants(broadcastMsg{channel: domain.ChannelPositions}))
	require.False(t, c.wants(broadcastMsg{channel: "prices"}))
}
