package api

import (
	"context"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/gateway"
)

const hubBuffer = 64

// client serializes writes to one connection
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// hub fans alarm snapshots and notices out to connected clients. Publishing
// never blocks the engine; a full buffer drops the message.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	queue   chan wsMessage
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		queue:   make(chan wsMessage, hubBuffer),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

func (h *hub) run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			h.broadcast(msg)
		}
	}
}

func (h *hub) close() {
	h.once.Do(func() { close(h.done) })
}

func (h *hub) publish(msg wsMessage) {
	select {
	case h.queue <- msg:
	default:
		h.logger.Warn("WebSocket queue full, dropping message", zap.String("type", msg.Type))
	}
}

func (h *hub) broadcast(msg wsMessage) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.logger.Debug("WebSocket write failed", zap.Error(err))
			h.remove(c)
		}
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) alarmMessage() wsMessage {
	status := s.engine.Alarm()
	return wsMessage{Type: "alarm", Alarm: &status}
}

// handleWebSocket pushes the alarm state on connect and on every change, and
// applies actions sent by the client
func (s *Server) handleWebSocket(conn *websocket.Conn) {
	cl := &client{conn: conn}
	s.hub.add(cl)
	defer s.hub.remove(cl)

	if err := cl.send(s.alarmMessage()); err != nil {
		return
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Debug("WebSocket closed", zap.Error(err))
			return
		}
		if msg.Type != "action" {
			continue
		}

		err := s.engine.Act(context.Background(), msg.MedicationID, gateway.Action(msg.Action), "websocket")
		if err != nil {
			if werr := cl.send(wsMessage{Type: "error", MedicationID: msg.MedicationID, Error: errorMessage(err)}); werr != nil {
				return
			}
		}
	}
}
