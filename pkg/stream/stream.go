// Package stream provides a WebSocket feed of the live trade tape
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/davecliff/BristolStockExchange/pkg/session"
)

// Message is the envelope for every frame sent to a client.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Sequence  uint64      `json:"sequence,omitempty"`
}

// TradeUpdate is one executed trade as published on the feed.
type TradeUpdate struct {
	Session string  `json:"session"`
	Day     int     `json:"day"`
	Time    float64 `json:"time"`
	Price   int64   `json:"price"`
	Qty     int64   `json:"qty"`
	Buyer   string  `json:"buyer"`
	Seller  string  `json:"seller"`
}

// Server fans the trade tape out to WebSocket observers. Publishing never
// blocks the simulation: a client that cannot keep up is dropped.
type Server struct {
	logger log.Logger

	clients    map[*client]bool
	clientsMu  sync.Mutex
	register   chan *client
	unregister chan *client
	broadcast  chan Message

	messagesOut uint64
	clientCount int32
	sequence    uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte

	closeOnce sync.Once
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewServer creates a trade feed server. Start the hub with Run before
// publishing.
func NewServer(logger log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:     logger,
		clients:    make(map[*client]bool),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan Message, 1024),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub goroutine. It returns immediately; Stop shuts the hub
// down and closes every connection.
func (s *Server) Run() {
	s.wg.Add(1)
	go s.runHub()
}

// Stop shuts down the hub and disconnects all clients.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Serve runs an HTTP server exposing the feed at /tape until Stop is
// called.
func (s *Server) Serve(addr string) error {
	s.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/tape", s.HandleFeed)
	mux.HandleFunc("/health", s.handleHealth)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-s.ctx.Done()
		server.Shutdown(context.Background())
	}()

	s.logger.Info("trade feed listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("trade feed server: %w", err)
	}
	return nil
}

// PublishTrade queues one trade record for broadcast. Intended as a
// session OnTrade observer; it never blocks, trades are dropped if the
// broadcast queue is full.
func (s *Server) PublishTrade(r session.TradeRecord) {
	msg := Message{
		Type: "trade",
		Data: TradeUpdate{
			Session: r.Session,
			Day:     r.Day,
			Time:    r.Time,
			Price:   r.Price,
			Qty:     r.Qty,
			Buyer:   r.Buyer,
			Seller:  r.Seller,
		},
		Timestamp: time.Now().Unix(),
		Sequence:  atomic.AddUint64(&s.sequence, 1),
	}

	select {
	case s.broadcast <- msg:
	default:
		s.logger.Warn("trade feed backlogged, dropping record", "sequence", msg.Sequence)
	}
}

// ClientCount returns the number of connected observers.
func (s *Server) ClientCount() int {
	return int(atomic.LoadInt32(&s.clientCount))
}

// HandleFeed upgrades an HTTP request to a WebSocket feed connection.
func (s *Server) HandleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("feed upgrade failed", "error", err)
		return
	}

	c := &client{
		id:     fmt.Sprintf("obs-%d-%d", time.Now().Unix(), time.Now().Nanosecond()),
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}

	s.register <- c

	go c.writePump()
	go c.readPump()

	c.enqueue(Message{
		Type:      "welcome",
		Data:      map[string]interface{}{"id": c.id},
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "healthy",
		"clients":  atomic.LoadInt32(&s.clientCount),
		"messages": atomic.LoadUint64(&s.messagesOut),
	})
}

func (s *Server) runHub() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			s.clientsMu.Lock()
			for c := range s.clients {
				c.shutdown()
				delete(s.clients, c)
			}
			s.clientsMu.Unlock()
			return

		case c := <-s.register:
			s.clientsMu.Lock()
			s.clients[c] = true
			s.clientsMu.Unlock()
			atomic.AddInt32(&s.clientCount, 1)
			s.logger.Debug("observer connected", "id", c.id)

		case c := <-s.unregister:
			s.clientsMu.Lock()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				c.shutdown()
				atomic.AddInt32(&s.clientCount, -1)
			}
			s.clientsMu.Unlock()
			s.logger.Debug("observer disconnected", "id", c.id)

		case msg := <-s.broadcast:
			s.broadcastMessage(msg)
		}
	}
}

func (s *Server) broadcastMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("feed message marshal failed", "error", err)
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
			atomic.AddUint64(&s.messagesOut, 1)
		default:
			// slow consumer: disconnect rather than stall the feed
			delete(s.clients, c)
			c.shutdown()
			atomic.AddInt32(&s.clientCount, -1)
		}
	}
}

func (c *client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.server.logger.Error("feed message marshal failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump drains the connection so pings and close frames are handled.
// The feed is one-way, inbound payloads are discarded.
func (c *client) readPump() {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Debug("feed read error", "id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
