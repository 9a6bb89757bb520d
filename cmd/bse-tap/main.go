// Command bse-tap follows the live trade feed of a running bse instance
// and prints each trade as it executes.
package main

import (
	"encoding/json"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/davecliff/BristolStockExchange/pkg/stream"
)

func main() {
	var (
		feedURL  = flag.String("url", "ws://localhost:8082/tape", "trade feed URL")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	level, _ := log.ToLevel(*logLevel)
	logger := log.NewTestLogger(level)

	u, err := url.Parse(*feedURL)
	if err != nil {
		logger.Error("invalid feed URL", "url", *feedURL, "error", err)
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Error("feed connection failed", "url", u.String(), "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("following trade feed", "url", u.String())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				logger.Warn("feed closed", "error", err)
				return
			}

			var msg stream.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Debug("unparseable frame", "data", string(data))
				continue
			}

			switch msg.Type {
			case "welcome":
				logger.Info("connected", "seq", msg.Sequence)
			case "trade":
				raw, _ := json.Marshal(msg.Data)
				var tr stream.TradeUpdate
				if err := json.Unmarshal(raw, &tr); err != nil {
					continue
				}
				logger.Info("trade",
					"day", tr.Day,
					"time", tr.Time,
					"price", tr.Price,
					"qty", tr.Qty,
					"buyer", tr.Buyer,
					"seller", tr.Seller)
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		logger.Info("interrupted, closing")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
