package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/registry"
	"StockPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientMessage is a control frame from the browser.
type clientMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Timestamp interface{} `json:"timestamp,omitempty"`
}

// serverMessage is an outbound frame. Type is one of
// connection_established, subscription_confirmed,
// unsubscription_confirmed, current_subscriptions, stock_update, pong
// or error.
type serverMessage struct {
	Type          string              `json:"type"`
	Symbol        string              `json:"symbol,omitempty"`
	Message       string              `json:"message,omitempty"`
	Data          *models.PriceUpdate `json:"data,omitempty"`
	Subscriptions []string            `json:"subscriptions,omitempty"`
	Timestamp     interface{}         `json:"timestamp,omitempty"`
}

// Gateway bridges websocket clients to the hub and the subscription
// registry. Each connection gets a filtered hub subscription so it only
// sees symbols it asked for.
type Gateway struct {
	logger   *logger.Logger
	registry *registry.Registry
	hub      *Hub
	upgrader websocket.Upgrader

	anonSeq uint64
}

// NewGateway creates a websocket gateway.
func NewGateway(lgr *logger.Logger, reg *registry.Registry, h *Hub) *Gateway {
	return &Gateway{
		logger:   lgr,
		registry: reg,
		hub:      h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The education frontend is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and serves the connection until the
// client goes away. Registered as an echo route.
func (g *Gateway) Handle(c echo.Context) error {
	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("ws upgrade: %w", err)
	}

	clientID := c.QueryParam("client_id")
	if clientID == "" {
		clientID = fmt.Sprintf("anon-%d", atomic.AddUint64(&g.anonSeq, 1))
	}

	g.logger.Info("ws client connected", logger.String("client_id", clientID))

	sub := g.hub.Subscribe(func(symbol string) bool {
		return g.registry.Subscribed(clientID, symbol)
	})
	out := make(chan serverMessage, 16)
	done := make(chan struct{})

	go g.writePump(conn, clientID, sub, out, done)

	out <- serverMessage{
		Type:      "connection_established",
		Message:   "Real-time updates connected",
		Timestamp: nowISO(),
	}

	g.readLoop(conn, clientID, out)

	close(done)
	sub.Close()
	g.registry.DropClient(clientID)
	_ = conn.Close()

	g.logger.Info("ws client disconnected", logger.String("client_id", clientID))
	return nil
}

// readLoop consumes control frames until the connection errors.
func (g *Gateway) readLoop(conn *websocket.Conn, clientID string, out chan<- serverMessage) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("ws read error",
					logger.String("client_id", clientID),
					logger.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.send(out, serverMessage{Type: "error", Message: "invalid json"})
			continue
		}

		switch msg.Type {
		case "subscribe":
			if msg.Symbol == "" {
				g.send(out, serverMessage{Type: "error", Message: "subscribe requires a symbol"})
				continue
			}
			symbol := registry.Normalize(msg.Symbol)
			g.registry.Subscribe(clientID, symbol)
			g.send(out, serverMessage{
				Type:    "subscription_confirmed",
				Symbol:  symbol,
				Message: fmt.Sprintf("Subscribed to %s updates", symbol),
			})

		case "unsubscribe":
			if msg.Symbol == "" {
				g.send(out, serverMessage{Type: "error", Message: "unsubscribe requires a symbol"})
				continue
			}
			symbol := registry.Normalize(msg.Symbol)
			g.registry.Unsubscribe(clientID, symbol)
			g.send(out, serverMessage{
				Type:    "unsubscription_confirmed",
				Symbol:  symbol,
				Message: fmt.Sprintf("Unsubscribed from %s updates", symbol),
			})

		case "ping":
			g.send(out, serverMessage{Type: "pong", Timestamp: msg.Timestamp})

		case "get_subscriptions":
			g.send(out, serverMessage{
				Type:          "current_subscriptions",
				Subscriptions: g.registry.ClientSymbols(clientID),
			})

		default:
			g.send(out, serverMessage{
				Type:    "error",
				Message: fmt.Sprintf("Unknown message type: %s", msg.Type),
			})
		}
	}
}

// writePump serializes all writes to the connection. gorilla permits a
// single concurrent writer, so updates and control replies funnel here.
func (g *Gateway) writePump(conn *websocket.Conn, clientID string, sub *Subscription, out <-chan serverMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			if !g.write(conn, serverMessage{
				Type:      "stock_update",
				Symbol:    u.Symbol,
				Data:      u,
				Timestamp: nowISO(),
			}) {
				return
			}

		case msg := <-out:
			if !g.write(conn, msg) {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (g *Gateway) write(conn *websocket.Conn, msg serverMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		g.logger.Debug("ws write failed", logger.Error(err))
		return false
	}
	return true
}

// send queues a control reply without ever blocking the read loop.
func (g *Gateway) send(out chan<- serverMessage, msg serverMessage) {
	select {
	case out <- msg:
	default:
	}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
