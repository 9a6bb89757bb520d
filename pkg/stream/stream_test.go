package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davecliff/BristolStockExchange/pkg/session"
)

func testLogger() log.Logger {
	level, _ := log.ToLevel("error")
	return log.NewTestLogger(level)
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestFeedDeliversTrades(t *testing.T) {
	s := NewServer(testLogger())
	s.Run()
	defer s.Stop()

	srv := httptest.NewServer(http.HandlerFunc(s.HandleFeed))
	defer srv.Close()

	conn := dialFeed(t, srv)

	welcome := readMessage(t, conn)
	assert.Equal(t, "welcome", welcome.Type)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 10*time.Millisecond, "observer must register before publishing")

	s.PublishTrade(session.TradeRecord{
		Session: "sess", Day: 1, Time: 0.5,
		Price: 100, Qty: 1, Buyer: "B00", Seller: "S03",
	})

	msg := readMessage(t, conn)
	require.Equal(t, "trade", msg.Type)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var tr TradeUpdate
	require.NoError(t, json.Unmarshal(raw, &tr))
	assert.Equal(t, int64(100), tr.Price)
	assert.Equal(t, "B00", tr.Buyer)
	assert.Equal(t, "S03", tr.Seller)
	assert.Equal(t, 0.5, tr.Time)
}

func TestFeedBroadcastsToAllObservers(t *testing.T) {
	s := NewServer(testLogger())
	s.Run()
	defer s.Stop()

	srv := httptest.NewServer(http.HandlerFunc(s.HandleFeed))
	defer srv.Close()

	a := dialFeed(t, srv)
	b := dialFeed(t, srv)
	readMessage(t, a) // welcome
	readMessage(t, b)

	require.Eventually(t, func() bool { return s.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	s.PublishTrade(session.TradeRecord{Session: "sess", Price: 97, Qty: 1})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "trade", msg.Type)
	}
}

func TestPublishNeverBlocksWithoutObservers(t *testing.T) {
	s := NewServer(testLogger())
	s.Run()
	defer s.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			s.PublishTrade(session.TradeRecord{Session: "sess", Price: int64(i%10 + 95), Qty: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing stalled with no observers connected")
	}
}

func TestStopDisconnectsObservers(t *testing.T) {
	s := NewServer(testLogger())
	s.Run()

	srv := httptest.NewServer(http.HandlerFunc(s.HandleFeed))
	defer srv.Close()

	conn := dialFeed(t, srv)
	readMessage(t, conn) // welcome

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	s.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection closed by the hub
		}
	}
}
