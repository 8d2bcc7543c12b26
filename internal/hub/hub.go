package hub

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"strings"
	"sync"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/fanout"
)

var droppedTotal = expvar.NewInt("fanout_dropped_total")

type Client struct {
	ID     string
	Send   chan []byte
	scopes map[string]struct{}
}

func NewClient(id string, buffer int) *Client {
	return &Client{ID: id, Send: make(chan []byte, buffer), scopes: make(map[string]struct{})}
}

// Hub tracks connected clients by scope and pushes envelopes to the clients
// joined to the envelope's scope.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	scopes  map[string]map[string]*Client
}

type Command struct {
	Action string `json:"action"`
	SiteID string `json:"site_id"`
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		scopes:  make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for scope := range client.scopes {
		h.removeLocked(client, scope)
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Join(client *Client, scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	members, ok := h.scopes[scope]
	if !ok {
		members = make(map[string]*Client)
		h.scopes[scope] = members
	}
	members[client.ID] = client
	client.scopes[scope] = struct{}{}
}

func (h *Hub) Leave(client *Client, scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client, scope)
}

func (h *Hub) removeLocked(client *Client, scope string) {
	delete(client.scopes, scope)
	members, ok := h.scopes[scope]
	if !ok {
		return
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.scopes, scope)
	}
}

// Members reports how many clients are joined to scope.
func (h *Hub) Members(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}

// Publish never blocks on a slow client; a full buffer drops the message.
func (h *Hub) Publish(ctx context.Context, env fanout.Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.scopes[env.Scope] {
		select {
		case client.Send <- payload:
		default:
			droppedTotal.Add(1)
			log.Printf("drop message for client %s scope=%s event=%s", client.ID, env.Scope, env.Event)
		}
	}
	return nil
}

func ParseCommand(data []byte) (Command, bool) {
	var msg Command
	if err := json.Unmarshal(data, &msg); err != nil {
		return Command{}, false
	}
	msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
	msg.SiteID = strings.TrimSpace(msg.SiteID)
	if msg.Action != "join" && msg.Action != "leave" {
		return Command{}, false
	}
	if msg.SiteID == "" {
		return Command{}, false
	}
	return msg, true
}
