package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 25 * time.Second
	pingTimeout  = 5 * time.Second
)

// EventSubscribed is the first frame every subscriber receives. Any
// publish after it reaches the subscriber.
const EventSubscribed = "subscription-succeeded"

// Envelope is the frame pushed to subscribers.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

type Client struct {
	Channel string
	conn    Conn
	send    chan []byte

	ctx    context.Context
	cancel context.CancelFunc
}

// Hub fans published events out to the clients subscribed to a channel
// on this instance. Events are not retained: a client only sees what is
// published while it is subscribed.
type Hub struct {
	log    *slog.Logger
	buffer int

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub(log *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		log:     log,
		buffer:  buffer,
		clients: map[string]map[*Client]struct{}{},
	}
}

func (h *Hub) Subscribe(channel string, conn Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		Channel: channel,
		conn:    conn,
		send:    make(chan []byte, h.buffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Queued before registration so it is always the first frame.
	if frame, err := encode(channel, EventSubscribed, struct{}{}); err == nil {
		c.send <- frame
	}

	h.mu.Lock()
	if h.clients[channel] == nil {
		h.clients[channel] = map[*Client]struct{}{}
	}
	h.clients[channel][c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop(h.log)
	go c.keepAliveLoop()

	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	c.cancel()

	h.mu.Lock()
	if set, ok := h.clients[c.Channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.Channel)
		}
	}
	h.mu.Unlock()

	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Subscribers reports how many clients are subscribed to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

func encode(channel, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Channel: channel, Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return frame, nil
}

// Publish encodes payload once and queues it for every subscriber of
// channel. A subscriber whose queue is full misses the event.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload any) error {
	frame, err := encode(channel, event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[channel] {
		select {
		case c.send <- frame:
		default:
			h.log.WarnContext(ctx, "subscriber queue full, dropping event",
				"channel", channel, "event", event)
		}
	}
	return nil
}

func (c *Client) writeLoop(log *slog.Logger) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				log.Debug("write to subscriber failed", "channel", c.Channel, "error", err)
			}
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}
