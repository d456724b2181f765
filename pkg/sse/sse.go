package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Client struct {
	id     string
	groups map[string]bool
	ch     chan string
	done   chan struct{}
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	groups   map[string]map[string]bool // group -> clientID set
	interval time.Duration
	retryMs  int
	seq      int64
	dropped  int64
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{clients: make(map[string]*Client), groups: make(map[string]map[string]bool), interval: interval, retryMs: 5000}
}

func (h *Hub) AddClient(id string, groups ...string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Client{id: id, groups: make(map[string]bool), ch: make(chan string, 64), done: make(chan struct{})}
	h.clients[id] = c
	for _, g := range groups {
		if g == "" {
			continue
		}
		c.groups[g] = true
		if h.groups[g] == nil {
			h.groups[g] = make(map[string]bool)
		}
		h.groups[g][id] = true
	}
	return c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	close(c.done)
	for g := range c.groups {
		delete(h.groups[g], id)
		if len(h.groups[g]) == 0 {
			delete(h.groups, g)
		}
	}
	delete(h.clients, id)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GroupCount(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) Dropped() int64 { return atomic.LoadInt64(&h.dropped) }

// Publish sends a named event to group, or to every client when group is empty.
func (h *Hub) Publish(group, event string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := formatEvent(atomic.AddInt64(&h.seq, 1), event, string(b))

	h.mu.RLock()
	defer h.mu.RUnlock()
	if group == "" {
		for _, c := range h.clients {
			h.offer(c, frame)
		}
		return nil
	}
	for id := range h.groups[group] {
		if c := h.clients[id]; c != nil {
			h.offer(c, frame)
		}
	}
	return nil
}

func (h *Hub) offer(c *Client, frame string) {
	select {
	case c.ch <- frame:
	default:
		atomic.AddInt64(&h.dropped, 1)
		logrus.Warnf("sse client %s buffer full, event dropped", c.id)
	}
}

func formatEvent(id int64, event, data string) string {
	return fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
}

// Serve streams events to one client until it disconnects.
func (h *Hub) Serve(c *gin.Context, groups []string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	clientID := uuid.NewString()
	client := h.AddClient(clientID, groups...)
	defer h.RemoveClient(clientID)

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.ch:
			_, _ = c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
