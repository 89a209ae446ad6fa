package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/metrics"
)

// Message types
const (
	MessageTypeCompletionRecorded = "completion_recorded"
	MessageTypeStandingsUpdate    = "standings_update"
	MessageTypeSubscribe          = "subscribe"
	MessageTypeUnsubscribe        = "unsubscribe"
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
	MessageTypeError              = "error"
)

// ChannelLeaderboard carries every completion and standings refresh
const ChannelLeaderboard = "leaderboard"

// CompetitorChannel is the channel for a single competitor's completions
func CompetitorChannel(rsn string) string {
	return "competitor:" + rsn
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StandingsUpdate is the payload of a standings_update message
type StandingsUpdate struct {
	TeamStandings       []domain.TeamStanding       `json:"team_standings"`
	IndividualStandings []domain.IndividualStanding `json:"individual_standings"`
	GeneratedAt         time.Time                   `json:"generated_at"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Subscribed clients by channel
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	channel string
}

// NewHub creates a new Hub; m may be nil
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			total := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebSocketConnections(total)
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				h.removeLocked(client)
			}
			total := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebSocketConnections(total)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if !h.allClients[req.client] {
				// queued before the client went away
				h.mu.Unlock()
				continue
			}
			if _, ok := h.clients[req.channel]; !ok {
				h.clients[req.channel] = make(map[*Client]bool)
			}
			h.clients[req.channel][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "channel", req.channel)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.channel]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.channel)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "channel", req.channel)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.cancel()
}

// removeLocked drops a client from every subscription; h.mu must be held
func (h *Hub) removeLocked(client *Client) {
	delete(h.allClients, client)
	for channel, clients := range h.clients {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, channel)
			}
		}
	}
	client.shut()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.allClients {
		h.removeLocked(client)
	}
	h.mu.Unlock()
	h.metrics.SetWebSocketConnections(0)
}

// broadcastMessage sends a message to the clients subscribed to its channel
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.Channel != "" {
		targets = h.clients[message.Channel]
	}
	for client := range targets {
		if !client.deliver(data) {
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastCompletion announces a recorded completion on the leaderboard
// channel and on the competitor's own channel
func (h *Hub) BroadcastCompletion(event domain.CompletionEvent) {
	now := time.Now()
	for _, channel := range []string{ChannelLeaderboard, CompetitorChannel(event.RSN)} {
		h.enqueue(&Message{
			Type:      MessageTypeCompletionRecorded,
			Channel:   channel,
			Data:      event,
			Timestamp: now,
		})
	}
}

// BroadcastStandings sends refreshed standings to leaderboard subscribers
func (h *Hub) BroadcastStandings(view *domain.LeaderboardView) {
	h.enqueue(&Message{
		Type:    MessageTypeStandingsUpdate,
		Channel: ChannelLeaderboard,
		Data: StandingsUpdate{
			TeamStandings:       view.TeamStandings,
			IndividualStandings: view.IndividualStandings,
			GeneratedAt:         view.GeneratedAt,
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a channel
func (h *Hub) Subscribe(client *Client, channel string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, channel: channel}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, channel: channel}:
	case <-h.ctx.Done():
	}
}

// GetSubscriberCount returns the number of subscribers for a channel
func (h *Hub) GetSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
