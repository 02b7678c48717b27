package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flightdelay/ml"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, metrics *Metrics) (*FeedHub, string, context.CancelFunc) {
	t.Helper()
	hub := NewFeedHub(nil, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFeedHubBroadcastsEvents(t *testing.T) {
	metrics := NewMetrics()
	hub, url, _ := startHub(t, metrics)
	first := dial(t, url)
	second := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.feedClients))

	flights := []ml.FlightRecord{{Airline: "Grupo LATAM", FlightType: ml.Internacional, Month: 7}}
	require.NoError(t, hub.Publish(PredictionEvent{
		Generation: 4,
		Flights:    flights,
		Predict:    []ml.DelayLabel{ml.Delayed},
	}))

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var event PredictionEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
		assert.Equal(t, uint64(4), event.Generation)
		assert.Equal(t, flights, event.Flights)
		assert.Equal(t, []ml.DelayLabel{ml.Delayed}, event.Predict)
	}
}

func TestFeedHubForgetsDisconnectedClients(t *testing.T) {
	hub, url, _ := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedHubShutdownClosesClients(t *testing.T) {
	hub, url, cancel := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestFeedHubPublishWithoutClients(t *testing.T) {
	hub, _, _ := startHub(t, nil)
	assert.NoError(t, hub.Publish(PredictionEvent{Predict: []ml.DelayLabel{ml.OnTime}}))
}

func TestFeedHubDropsSlowClient(t *testing.T) {
	metrics := NewMetrics()
	hub, _, _ := startHub(t, metrics)

	// nobody drains send, so the first broadcast cannot be delivered
	slow := &feedClient{id: "slow", send: make(chan []byte)}
	hub.register <- slow
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(PredictionEvent{Generation: 1, Predict: []ml.DelayLabel{ml.OnTime}}))
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0 && testutil.ToFloat64(metrics.feedClients) == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, open := <-slow.send
	assert.False(t, open)
}
