package realtime

import (
	"sync"
)

// Client represents a single subscriber of a topic.
// Websocket connections implement it in the handlers package; in-process
// listeners go through Subscribe.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Hub maintains subscribers per topic (a document path) and broadcasts
// messages to them.
type Hub struct {
	mu             sync.RWMutex
	topicToClients map[string]map[Client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		topicToClients: make(map[string]map[Client]struct{}),
	}
}

// Register adds a client under a topic.
func (h *Hub) Register(topic string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topicToClients[topic]; !ok {
		h.topicToClients[topic] = make(map[Client]struct{})
	}
	h.topicToClients[topic][client] = struct{}{}
}

// Unregister removes a client; if the topic has no more clients, cleans up map.
func (h *Hub) Unregister(topic string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.topicToClients[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topicToClients, topic)
		}
	}
}

// Subscribe registers fn for topic and returns a function that removes it.
func (h *Hub) Subscribe(topic string, fn func(message []byte)) func() {
	c := &funcClient{fn: fn}
	h.Register(topic, c)
	var once sync.Once
	return func() {
		once.Do(func() { h.Unregister(topic, c) })
	}
}

// Subscribers returns the number of clients registered for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topicToClients[topic])
}

// Broadcast sends a message to all clients of a topic. Clients are called
// outside the lock so a client may subscribe or unsubscribe from its callback.
func (h *Hub) Broadcast(topic string, message []byte) {
	h.mu.RLock()
	clients := make([]Client, 0, len(h.topicToClients[topic]))
	for c := range h.topicToClients[topic] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	// a failed Send is cleaned up by the client's owner
	for _, c := range clients {
		c.Send(message)
	}
}

type funcClient struct {
	fn func(message []byte)
}

func (c *funcClient) Send(message []byte) bool {
	c.fn(message)
	return true
}

func (c *funcClient) Close() {}
