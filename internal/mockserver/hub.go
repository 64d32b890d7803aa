package mockserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"inpass/internal/notify"
)

// Hub fans pushed events out to every subscriber of a group over the
// record protocol the client-side subscriber speaks.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	group string
	mu    sync.Mutex
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// Negotiate implements POST /notification/negotiate.
func (h *Hub) Negotiate(w http.ResponseWriter, _ *http.Request) {
	resp := notify.NegotiateResponse{
		ConnectionID: uuid.NewString(),
		AvailableTransports: []notify.TransportAvailable{
			{Transport: notify.TransportWebSockets, TransferFormats: []string{"Text"}},
		},
	}
	record, err := notify.EncodeRecord(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	// Negotiate replies are plain JSON, not a separated record.
	w.Write(record[:len(record)-1])
}

// Serve upgrades GET /notification and runs the connection until the
// peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("hub upgrade failed", zap.Error(err))
		return
	}
	client := &hubClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}

	if err := h.completeHandshake(client); err != nil {
		h.logger.Warn("hub handshake failed", zap.Error(err))
		conn.Close()
		return
	}

	h.register(client)
	go h.writePump(client)
	h.readPump(client)
	h.unregister(client)
}

func (h *Hub) completeHandshake(c *hubClient) error {
	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	records := notify.SplitRecords(frame)
	if len(records) == 0 {
		return errors.New("empty handshake frame")
	}
	var req notify.HandshakeRequest
	resp := notify.HandshakeResponse{}
	if err := json.Unmarshal(records[0], &req); err != nil || req.Protocol != "json" {
		resp.Error = "unsupported protocol"
	}
	record, err := notify.EncodeRecord(resp)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, record); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New("handshake rejected")
	}
	return nil
}

func (h *Hub) register(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) readPump(c *hubClient) {
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		for _, record := range notify.SplitRecords(frame) {
			var msg notify.HubMessage
			if err := json.Unmarshal(record, &msg); err != nil {
				continue
			}
			if msg.Type == notify.MsgInvocation && msg.Target == "JoinGroup" && len(msg.Arguments) > 0 {
				var group string
				if err := json.Unmarshal(msg.Arguments[0], &group); err == nil {
					c.mu.Lock()
					c.group = group
					c.mu.Unlock()
					h.logger.Info("hub client joined group",
						zap.String("client", c.id), zap.String("group", group))
				}
			}
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// Broadcast pushes one event to every member of a group. Slow clients
// are skipped rather than blocking the fan-out.
func (h *Hub) Broadcast(group, target string, args ...any) {
	msg, err := notify.Invocation(target, args...)
	if err != nil {
		h.logger.Warn("encode broadcast", zap.Error(err))
		return
	}
	record, err := notify.EncodeRecord(msg)
	if err != nil {
		h.logger.Warn("encode broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.mu.Lock()
		member := client.group == group
		client.mu.Unlock()
		if !member {
			continue
		}
		select {
		case client.send <- record:
		default:
			h.logger.Warn("drop hub message", zap.String("client", client.id))
		}
	}
}
