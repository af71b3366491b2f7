package websocket

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/pkg/contracts/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(hub *Hub, id string) *Client {
	return &Client{
		id:          id,
		hub:         hub,
		send:        make(chan []byte, 16),
		connectedAt: time.Now(),
		remoteAddr:  "127.0.0.1:9999",
		logger:      testLogger(),
	}
}

func recvEnvelope(t *testing.T, c *Client) events.Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env events.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return events.Envelope{}
	}
}

func TestHubGreetsRegisteredClients(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := testClient(hub, "client-1")
	hub.Register(client)

	env := recvEnvelope(t, client)
	assert.Equal(t, events.EventConnect, env.Type)

	data := env.Data.(map[string]interface{})
	assert.Equal(t, "connected", data["status"])
	assert.Equal(t, "client-1", data["client_id"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestHubPublishReachesAllClients(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = testClient(hub, fmt.Sprintf("client-%d", i))
		hub.Register(clients[i])
	}
	for _, c := range clients {
		recvEnvelope(t, c) // greeting
	}

	hub.Publish(string(events.EventRunProgress), events.RunSnapshot{
		RunID:    "run-1",
		Status:   "running",
		Progress: 40,
	})

	for _, c := range clients {
		env := recvEnvelope(t, c)
		assert.Equal(t, events.EventRunProgress, env.Type)
		data := env.Data.(map[string]interface{})
		assert.Equal(t, "run-1", data["run_id"])
		assert.Equal(t, float64(40), data["progress"])
		assert.False(t, env.Timestamp.IsZero())
	}
}

func TestHubEvictsSlowClients(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	slow := testClient(hub, "slow")
	slow.send = make(chan []byte, 1)
	hub.Register(slow)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	// the greeting already fills the one-slot buffer; nobody drains it
	for i := 0; i < 5; i++ {
		hub.Publish(string(events.EventRunStatus), events.RunSnapshot{RunID: "run-1"})
	}

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := testClient(hub, "client-1")
	hub.Register(client)
	recvEnvelope(t, client)

	hub.unregister <- client

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 5*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)

	// unregistering twice must not double-close
	hub.unregister <- client
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestHubPublishAfterStopDropsFrames(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	hub.Stop()

	// must not block even with nobody draining broadcast
	for i := 0; i < broadcastBuffer+10; i++ {
		hub.Publish(string(events.EventRunStatus), events.RunSnapshot{RunID: "run-1"})
	}

	stats := hub.Stats()
	assert.Positive(t, stats["messages_dropped"].(int64))
}

func TestHubStartStopIdempotent(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	hub.Start()
	hub.Stop()
	hub.Stop()
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()

	client := testClient(hub, "client-1")
	hub.Register(client)
	recvEnvelope(t, client)

	hub.Stop()

	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubStats(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := testClient(hub, "client-1")
	hub.Register(client)
	recvEnvelope(t, client)

	hub.Publish(string(events.EventRunStatus), events.RunSnapshot{RunID: "run-1"})
	recvEnvelope(t, client)

	require.Eventually(t, func() bool {
		return hub.Stats()["messages_sent"].(int64) == 1
	}, time.Second, 5*time.Millisecond)

	stats := hub.Stats()
	assert.Equal(t, 1, stats["active_clients"])
	assert.Equal(t, int64(1), stats["total_connections"])
}

func TestHubWithNilLogger(t *testing.T) {
	hub := NewHub(nil)
	assert.NotNil(t, hub.logger)
}
