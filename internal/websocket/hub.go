package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"counseling-portal-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// Hub pushes session snapshots and breaker transitions to every connected
// portal client, so the UI converges without polling.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance fan-out
	rdb *redis.Client

	// Tags this instance's publications so its own broadcasts are not
	// re-delivered when they echo back on the channel.
	instance string

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rdb:        rdb,
		instance:   uuid.New().String(),
		logger:     log,
	}
}

func (h *Hub) Run() {
	// Start Redis subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"clients": h.count()})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"clients": h.count()})
		}
	}
}

// Broadcast sends a typed payload to ALL connected clients, locally and via
// Redis to the other instances.
func (h *Hub) Broadcast(messageType string, payload interface{}) {
	// 1. Serialize
	data, err := json.Marshal(map[string]interface{}{
		"type": messageType,
		"data": payload,
	})
	if err != nil {
		h.logger.Warn("Hub", "Failed to serialize broadcast", map[string]interface{}{"type": messageType, "error": err.Error()})
		return
	}

	// 2. Send to all local clients
	h.sendLocal(data)

	// 3. Publish to Redis for other instances
	if h.rdb != nil {
		wrapped, _ := json.Marshal(map[string]interface{}{
			"origin":  h.instance,
			"message": json.RawMessage(data),
		})
		h.rdb.Publish(context.Background(), clusterChannel, wrapped)
	}
}

func (h *Hub) sendLocal(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Client send buffer full, dropping connection", nil)
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.handleClusterMessage([]byte(msg.Payload))
	}
}

// handleClusterMessage delivers a cross-instance broadcast to local clients,
// skipping this instance's own publications so nobody hears double.
func (h *Hub) handleClusterMessage(raw []byte) {
	var payload struct {
		Origin  string          `json:"origin"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("Redis msg parse error: %v", err)
		return
	}
	if payload.Origin == h.instance {
		return
	}
	h.sendLocal(payload.Message)
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
