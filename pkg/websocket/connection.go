package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Identity is who is connecting and which groups they start in.
type Identity struct {
	UserID string
	Role   string
	Groups []string
}

func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		// clients are mobile apps and dashboards on other origins
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: cfg.EnableCompression,
	}
}

// Serve upgrades the request and starts the connection pumps.
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, id Identity) {
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("ws upgrade failed: %v", err)
		return
	}
	if hub.config.EnableCompression {
		conn.EnableWriteCompression(true)
	}

	c := NewConnection(hub, conn, id)
	if !hub.join(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// NewConnection builds a connection with its initial groups.
func NewConnection(hub *Hub, conn *websocket.Conn, id Identity) *Connection {
	c := &Connection{
		ID:       "conn_" + uuid.NewString(),
		UserID:   id.UserID,
		Role:     id.Role,
		Conn:     conn,
		Send:     make(chan []byte, hub.config.MessageBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
		IsAlive:  true,
		Groups:   make(map[string]bool),
	}
	for _, g := range id.Groups {
		if g != "" {
			c.Groups[g] = true
		}
	}
	return c
}

func (c *Connection) alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.IsAlive
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()
}

func (c *Connection) readPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("ws read error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one frame per event; clients parse each frame as a single JSON document
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage accepts the small client vocabulary: ping and group membership.
func (c *Connection) handleMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.Warnf("ws bad client message from %s: %v", c.ID, err)
		return
	}
	switch msg.Type {
	case MessageTypePing:
		c.touch()
		c.reply(MessageTypePong, nil)
	case MessageTypeJoinGroup:
		if group, ok := msg.Data.(string); ok && group != "" {
			c.JoinGroup(group)
			c.reply(MessageTypeGroupJoined, group)
		}
	case MessageTypeLeaveGroup:
		if group, ok := msg.Data.(string); ok && group != "" {
			c.LeaveGroup(group)
			c.reply(MessageTypeGroupLeft, group)
		}
	default:
		logrus.Debugf("ws ignoring message type %q from %s", msg.Type, c.ID)
	}
}

func (c *Connection) reply(msgType string, data interface{}) {
	b, _ := json.Marshal(Message{Type: msgType, Data: data, Timestamp: time.Now().UnixMilli()})
	select {
	case c.Send <- b:
	default:
		logrus.Warnf("ws send buffer full for %s", c.ID)
	}
}

func (c *Connection) JoinGroup(group string) {
	c.mu.Lock()
	c.Groups[group] = true
	c.mu.Unlock()

	c.Hub.mu.Lock()
	if _, registered := c.Hub.connections[c.ID]; registered {
		c.Hub.addToGroupLocked(group, c.ID)
	}
	c.Hub.mu.Unlock()
}

func (c *Connection) LeaveGroup(group string) {
	c.mu.Lock()
	delete(c.Groups, group)
	c.mu.Unlock()

	c.Hub.mu.Lock()
	c.Hub.removeFromGroupLocked(group, c.ID)
	c.Hub.mu.Unlock()
}

func (c *Connection) IsInGroup(group string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Groups[group]
}
