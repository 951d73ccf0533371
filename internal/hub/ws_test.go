package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"StockPulse/internal/registry"
	"StockPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func newTestGateway(t *testing.T) (*Gateway, *registry.Registry, *Hub) {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	reg := registry.New(lgr)
	h, _ := newTestHub(t)
	return NewGateway(lgr, reg, h), reg, h
}

func dialGateway(t *testing.T, gw *Gateway, clientID string) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	e := echo.New()
	e.GET("/ws", gw.Handle)
	srv := httptest.NewServer(e)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client_id=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, srv
}

func readFrame(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

func sendFrame(t *testing.T, conn *websocket.Conn, msg clientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestGatewayProtocol(t *testing.T) {
	gw, reg, h := newTestGateway(t)
	conn, srv := dialGateway(t, gw, "c1")
	defer srv.Close()
	defer conn.Close()

	if msg := readFrame(t, conn); msg.Type != "connection_established" {
		t.Fatalf("first frame = %s, want connection_established", msg.Type)
	}

	sendFrame(t, conn, clientMessage{Type: "subscribe", Symbol: "aapl"})
	msg := readFrame(t, conn)
	if msg.Type != "subscription_confirmed" || msg.Symbol != "AAPL" {
		t.Fatalf("subscribe ack = %+v", msg)
	}
	if !reg.Subscribed("c1", "AAPL") {
		t.Fatal("registry should hold the subscription")
	}

	h.Publish(update("AAPL", 252.29))
	msg = readFrame(t, conn)
	if msg.Type != "stock_update" || msg.Symbol != "AAPL" {
		t.Fatalf("update frame = %+v", msg)
	}
	if msg.Data == nil || msg.Data.Price != 252.29 {
		t.Fatalf("update data = %+v", msg.Data)
	}

	// MSFT is not subscribed; the next frame after a ping must be the
	// pong, never a leaked MSFT update.
	h.Publish(update("MSFT", 350.10))
	sendFrame(t, conn, clientMessage{Type: "ping", Timestamp: "t1"})
	if msg = readFrame(t, conn); msg.Type != "pong" {
		t.Fatalf("frame after ping = %+v, want pong", msg)
	}

	sendFrame(t, conn, clientMessage{Type: "get_subscriptions"})
	msg = readFrame(t, conn)
	if msg.Type != "current_subscriptions" {
		t.Fatalf("frame = %+v", msg)
	}
	if len(msg.Subscriptions) != 1 || msg.Subscriptions[0] != "AAPL" {
		t.Fatalf("subscriptions = %v, want [AAPL]", msg.Subscriptions)
	}

	sendFrame(t, conn, clientMessage{Type: "unsubscribe", Symbol: "AAPL"})
	msg = readFrame(t, conn)
	if msg.Type != "unsubscription_confirmed" || msg.Symbol != "AAPL" {
		t.Fatalf("unsubscribe ack = %+v", msg)
	}

	// Updates stop after unsubscribe: publish, then ping, and the pong
	// must arrive next.
	h.Publish(update("AAPL", 253.01))
	sendFrame(t, conn, clientMessage{Type: "ping"})
	if msg = readFrame(t, conn); msg.Type != "pong" {
		t.Fatalf("frame after unsubscribe = %+v, want pong", msg)
	}
}

func TestGatewayRejectsUnknownType(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	conn, srv := dialGateway(t, gw, "c1")
	defer srv.Close()
	defer conn.Close()

	readFrame(t, conn) // connection_established

	sendFrame(t, conn, clientMessage{Type: "bogus"})
	msg := readFrame(t, conn)
	if msg.Type != "error" || !strings.Contains(msg.Message, "bogus") {
		t.Fatalf("frame = %+v, want error naming the type", msg)
	}

	sendFrame(t, conn, clientMessage{Type: "subscribe"})
	if msg = readFrame(t, conn); msg.Type != "error" {
		t.Fatalf("subscribe without symbol = %+v, want error", msg)
	}
}

func TestGatewayDropsClientOnDisconnect(t *testing.T) {
	gw, reg, h := newTestGateway(t)
	conn, srv := dialGateway(t, gw, "c1")
	defer srv.Close()

	readFrame(t, conn) // connection_established

	sendFrame(t, conn, clientMessage{Type: "subscribe", Symbol: "TSLA"})
	readFrame(t, conn) // subscription_confirmed

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Watched("TSLA") || h.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("cleanup incomplete: watched=%v subscribers=%d",
				reg.Watched("TSLA"), h.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
