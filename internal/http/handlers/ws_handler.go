package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/auth"
	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/events"
	"go.uber.org/zap"
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
}

// WSHub pushes ledger events and notifications to the websocket clients of
// the addresses they concern. Events that name no address go to everyone.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.Mutex
	connections map[string][]wsConn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]wsConn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	for _, stream := range []string{h.cfg.EventsChannel, h.cfg.NotifyChannel} {
		if err := h.subscriber.Subscribe(ctx, stream, h.dispatch); err != nil {
			h.log.Error("ws hub subscribe failed", zap.String("stream", stream), zap.Error(err))
		}
	}
}

func (h *WSHub) dispatch(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	// один писатель на соединение: события приходят из двух подписок
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(event.Addresses) == 0 {
		for _, conns := range h.connections {
			h.write(conns, data)
		}
		return
	}
	for _, addr := range event.Addresses {
		h.write(h.connections[addr], data)
	}
}

func (h *WSHub) write(conns []wsConn, data []byte) {
	for _, conn := range conns {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (h *WSHub) register(addr string, conn wsConn) {
	h.mu.Lock()
	h.connections[addr] = append(h.connections[addr], conn)
	h.mu.Unlock()
}

func (h *WSHub) unregister(addr string, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.connections[addr]
	for i, c := range conns {
		if c == conn {
			h.connections[addr] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[addr]) == 0 {
		delete(h.connections, addr)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	// Extract token from query
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	addr := claims.Subject
	h.register(addr, conn)
	defer func() {
		h.unregister(addr, conn)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
