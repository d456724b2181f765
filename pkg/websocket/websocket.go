package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message is the envelope pushed to clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Group     string      `json:"group,omitempty"`
}

// Connection is one upgraded client.
type Connection struct {
	ID       string
	UserID   string
	Role     string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time
	IsAlive  bool
	mu       sync.RWMutex
	Groups   map[string]bool
}

// Hub tracks connections and their group memberships.
type Hub struct {
	connections      map[string]*Connection
	groupConnections map[string]map[string]bool
	publish          chan *Message
	register         chan *Connection
	unregister       chan *Connection
	connectionCount  int64
	dropped          int64
	config           *Config
	mu               sync.RWMutex
	ctx              context.Context
	cancel           context.CancelFunc
}

// Config WebSocket配置
type Config struct {
	MaxConnections    int64
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	// per-connection send buffer
	MessageBufferSize int
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int
	EnableCompression bool
	// hub publish queue
	MessageQueueSize int
	// drop instead of waiting SendTimeout when a client buffer is full
	DropOnFull  bool
	SendTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 60 * time.Second,
		MessageBufferSize: DefaultMessageBufferSize,
		ReadBufferSize:    DefaultReadBufferSize,
		WriteBufferSize:   DefaultWriteBufferSize,
		MaxMessageSize:    DefaultMaxMessageSize,
		EnableCompression: true,
		MessageQueueSize:  DefaultMessageQueueSize,
		DropOnFull:        true,
		SendTimeout:       50 * time.Millisecond,
	}
}

func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections:      make(map[string]*Connection),
		groupConnections: make(map[string]map[string]bool),
		publish:          make(chan *Message, config.MessageQueueSize),
		register:         make(chan *Connection, 256),
		unregister:       make(chan *Connection, 256),
		config:           config,
		ctx:              ctx,
		cancel:           cancel,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case message := <-h.publish:
			data, err := json.Marshal(message)
			if err != nil {
				logrus.Errorf("ws message marshal failed: %v", err)
				continue
			}
			if message.Group != "" {
				h.sendToGroup(message.Group, data)
			} else {
				h.sendToAll(data)
			}
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// Publish queues msgType for every connection in group, or for everyone when group is empty.
// It never blocks; a full queue drops the message.
func (h *Hub) Publish(group, msgType string, data interface{}) error {
	if h.ctx.Err() != nil {
		return fmt.Errorf("websocket hub closed")
	}
	msg := &Message{Type: msgType, Data: data, Group: group, Timestamp: time.Now().UnixMilli()}
	select {
	case h.publish <- msg:
		return nil
	default:
		atomic.AddInt64(&h.dropped, 1)
		return fmt.Errorf("websocket publish queue full")
	}
}

// join hands conn to the run loop. It fails once the hub is closed.
func (h *Hub) join(conn *Connection) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.register <- conn:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// leave is join's counterpart; after Close there is no loop left to receive.
func (h *Hub) leave(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		logrus.Warnf("ws connection limit reached: %d", h.config.MaxConnections)
		return
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)
	for group := range conn.Groups {
		h.addToGroupLocked(group, conn.ID)
	}
	logrus.Infof("ws registered %s role=%s user=%s total=%d",
		conn.ID, conn.Role, conn.UserID, atomic.LoadInt64(&h.connectionCount))
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn.ID]; !exists {
		return
	}
	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)
	conn.mu.RLock()
	for group := range conn.Groups {
		h.removeFromGroupLocked(group, conn.ID)
	}
	conn.mu.RUnlock()
	// senders hold h.mu, so nothing writes to Send after this
	close(conn.Send)
	logrus.Infof("ws unregistered %s total=%d", conn.ID, atomic.LoadInt64(&h.connectionCount))
}

func (h *Hub) addToGroupLocked(group, connID string) {
	if h.groupConnections[group] == nil {
		h.groupConnections[group] = make(map[string]bool)
	}
	h.groupConnections[group][connID] = true
}

func (h *Hub) removeFromGroupLocked(group, connID string) {
	if h.groupConnections[group] == nil {
		return
	}
	delete(h.groupConnections[group], connID)
	if len(h.groupConnections[group]) == 0 {
		delete(h.groupConnections, group)
	}
}

func (h *Hub) sendToGroup(group string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.groupConnections[group] {
		if conn, ok := h.connections[connID]; ok && conn.alive() {
			h.trySend(conn, data)
		}
	}
}

func (h *Hub) sendToAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		if conn.alive() {
			h.trySend(conn, data)
		}
	}
}

// trySend applies the backpressure policy for a slow client.
func (h *Hub) trySend(conn *Connection, data []byte) {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
		default:
			atomic.AddInt64(&h.dropped, 1)
			logrus.Warnf("ws send buffer full for %s, dropped", conn.ID)
		}
		return
	}
	timeout := h.config.SendTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case conn.Send <- data:
	case <-time.After(timeout):
		atomic.AddInt64(&h.dropped, 1)
		logrus.Warnf("ws send to %s timed out, dropped", conn.ID)
	}
}

func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		conn.mu.Lock()
		stale := now.Sub(conn.LastPing) > h.config.ConnectionTimeout
		if stale {
			conn.IsAlive = false
		}
		conn.mu.Unlock()
		if stale && conn.Conn != nil {
			logrus.Warnf("ws heartbeat timeout %s, closing", conn.ID)
			conn.Conn.Close()
		}
	}
}

func (h *Hub) GetConnectionCount() int64 { return atomic.LoadInt64(&h.connectionCount) }

func (h *Hub) Dropped() int64 { return atomic.LoadInt64(&h.dropped) }

func (h *Hub) GetGroupConnections(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groupConnections[group])
}

func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	for _, conn := range h.connections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}
	h.mu.Unlock()
	logrus.Info("websocket hub closed")
}
