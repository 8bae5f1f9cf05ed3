// Package websocket pushes events to connected screens. Clients subscribe to
// topics, either with ?topics=a,b on connect or with subscribe messages, and
// receive every event published to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is what a client sends to change its subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// InitialState produces the event a client receives right after subscribing
// to topic, so a screen does not stay blank until the next change.
type InitialState func(ctx context.Context, topic string) (Event, bool)

type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
}

func newClient() *Client {
	return &Client{
		ID:     uuid.NewString(),
		Send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
}

// Hub tracks clients by topic. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	byTopic map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
	initial InitialState
}

type HubOption func(*Hub)

func WithInitialState(fn InitialState) HubOption {
	return func(h *Hub) { h.initial = fn }
}

func NewHub(logger zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		byTopic: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
}

// Unregister drops every subscription of c and closes its Send channel.
// Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.removeLocked(c, topic)
	}
	delete(h.all, c)
	close(c.Send)
}

// Subscribe adds topics to c and queues the initial state of each new one.
func (h *Hub) Subscribe(ctx context.Context, c *Client, topics []string) {
	var added []string

	h.mu.Lock()
	if _, ok := h.all[c]; !ok {
		h.mu.Unlock()
		return
	}
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if _, ok := c.topics[topic]; ok {
			continue
		}
		if h.byTopic[topic] == nil {
			h.byTopic[topic] = make(map[*Client]struct{})
		}
		h.byTopic[topic][c] = struct{}{}
		c.topics[topic] = struct{}{}
		added = append(added, topic)
	}
	h.mu.Unlock()

	if h.initial == nil {
		return
	}
	for _, topic := range added {
		if ev, ok := h.initial(ctx, topic); ok {
			h.sendTo(c, ev)
		}
	}
}

func (h *Hub) Unsubscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		h.removeLocked(c, topic)
	}
}

func (h *Hub) removeLocked(c *Client, topic string) {
	delete(c.topics, topic)
	if subs, ok := h.byTopic[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.byTopic, topic)
		}
	}
}

func (h *Hub) ProcessMessage(ctx context.Context, c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(ctx, c, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics)
	default:
		h.logger.Debug().Str("client_id", c.ID).Str("action", msg.Action).Msg("ignoring unknown action")
	}
}

// Publish delivers event to every subscriber of event.Topic. Slow clients
// whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.byTopic[event.Topic] {
		select {
		case c.Send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn().Str("topic", event.Topic).Int("dropped", dropped).Msg("subscriber buffer full")
	}
	return nil
}

func (h *Hub) sendTo(c *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[c]; !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

// Handler upgrades HTTP requests to WebSocket connections bound to a Hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts connections whose Origin is in allowedOrigins. An empty
// list or a "*" entry accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.HandleConnect)
}

func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	client := newClient()
	h.hub.Register(client)
	h.hub.logger.Debug().Str("client_id", client.ID).Str("remote_ip", c.RealIP()).Msg("client connected")

	// Detached from the request: the connection outlives the handler.
	ctx := context.WithoutCancel(c.Request().Context())
	if q := c.QueryParam("topics"); q != "" {
		h.hub.Subscribe(ctx, client, strings.Split(q, ","))
	}

	go h.writePump(client, ws)
	go h.readPump(ctx, client, ws)
	return nil
}

func (h *Handler) readPump(ctx context.Context, client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		h.hub.logger.Debug().Str("client_id", client.ID).Msg("client disconnected")
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(ctx, client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
