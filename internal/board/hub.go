// Package board pushes scheduling-board changes to connected staff browsers
// over WebSockets.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Event types.
const (
	EventBooked      = "appointment.booked"
	EventCancelled   = "appointment.cancelled"
	EventReplied     = "appointment.reply"
	EventDayClosed   = "day.closed"
	EventDayReopened = "day.reopened"
	EventWaitlist    = "waitlist.changed"
)

// Event is one board change. Topic is the Monday of the affected week.
type Event struct {
	Type        string    `json:"type"`
	Topic       string    `json:"topic"`
	Date        string    `json:"date"`
	Time        string    `json:"time,omitempty"`
	ServiceType string    `json:"service_type,omitempty"`
	ID          string    `json:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent builds an event for date, deriving its week topic.
func NewEvent(eventType, date string) Event {
	return Event{Type: eventType, Topic: WeekTopic(date), Date: date, Timestamp: time.Now().UTC()}
}

// WeekTopic returns the Monday of date's week, or date itself when it does
// not parse.
func WeekTopic(date string) string {
	d, err := time.Parse(schedule.DateLayout, date)
	if err != nil {
		return date
	}
	back := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -back).Format(schedule.DateLayout)
}

type subscribeMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type client struct {
	id     string
	topics map[string]bool
	send   chan []byte
}

// ClientMetrics tracks connected board clients.
type ClientMetrics interface {
	BoardClientDelta(delta int)
}

// DefaultChannel is the Redis channel board events travel on.
const DefaultChannel = "clinic:board:events"

// Hub fans events out to subscribed clients. A client with no topics gets
// every event. With a relay attached, Publish goes through Redis so every
// process running Listen sees events written by any other process.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *logging.Logger
	metrics ClientMetrics

	relay   *redis.Client
	channel string
}

func NewHub(logger *logging.Logger, metrics ClientMetrics) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{clients: map[*client]struct{}{}, logger: logger, metrics: metrics}
}

// WithRelay routes published events through Redis pub/sub on channel.
func (h *Hub) WithRelay(client *redis.Client, channel string) *Hub {
	if channel == "" {
		channel = DefaultChannel
	}
	h.relay, h.channel = client, channel
	return h
}

// Listen subscribes to the relay channel and delivers every message to local
// clients until ctx ends. It returns once the subscription is confirmed.
func (h *Hub) Listen(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	sub := h.relay.Subscribe(ctx, h.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("board: subscribe %s: %w", h.channel, err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					h.logger.Warn("board: bad relay payload", "error", err)
					continue
				}
				h.deliver(e.Topic, []byte(msg.Payload))
			}
		}
	}()
	h.logger.Info("board relay listening", "channel", h.channel)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.BoardClientDelta(1)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.BoardClientDelta(-1)
	}
}

func (h *Hub) subscribe(c *client, msg subscribeMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range msg.Topics {
		switch msg.Action {
		case "subscribe":
			c.topics[t] = true
		case "unsubscribe":
			delete(c.topics, t)
		}
	}
}

// Publish sends e through the relay when one is attached and straight to
// local clients otherwise. A relay failure falls back to local delivery.
func (h *Hub) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("board: marshal event", "error", err)
		return
	}
	if h.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := h.relay.Publish(ctx, h.channel, data).Err()
		cancel()
		if err == nil {
			return
		}
		h.logger.Warn("board: relay publish failed, delivering locally", "error", err)
	}
	h.deliver(e.Topic, data)
}

// deliver hands data to every local client interested in topic. Slow clients
// drop events rather than block the writer.
func (h *Hub) deliver(topic string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if len(c.topics) > 0 && !c.topics[topic] {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("board: client buffer full, dropping event", "client", c.id)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades admin requests to WebSocket board feeds.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts connections from allowedOrigins; an empty list allows
// same-host requests only.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := map[string]bool{}
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	up := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(allowed) > 0 {
		up.CheckOrigin = func(r *http.Request) bool {
			return allowed["*"] || allowed[r.Header.Get("Origin")]
		}
	}
	return &Handler{hub: hub, upgrader: up}
}

// RegisterRoutes mounts GET /board/ws.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/board/ws", h.connect)
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warn("board: upgrade failed", "error", err)
		return
	}
	c := &client{id: uuid.NewString(), topics: map[string]bool{}, send: make(chan []byte, 64)}
	h.hub.register(c)
	go h.writePump(c, ws)
	go h.readPump(c, ws)
}

func (h *Hub) readLoop(c *client, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.subscribe(c, msg)
	}
}

func (h *Handler) readPump(c *client, ws *websocket.Conn) {
	defer func() {
		h.hub.unregister(c)
		_ = ws.Close()
	}()
	h.hub.readLoop(c, ws)
}

func (h *Handler) writePump(c *client, ws *websocket.Conn) {
	defer ws.Close()
	for msg := range c.send {
		_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
}
