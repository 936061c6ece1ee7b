package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"nexus-chat/internal/chat"
	"nexus-chat/internal/models"
	"nexus-chat/internal/ws"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type State int32

const (
	Disconnected State = iota
	Subscribing
	Live
)

func (s State) String() string {
	switch s {
	case Subscribing:
		return "subscribing"
	case Live:
		return "live"
	default:
		return "disconnected"
	}
}

var (
	ErrEmptyContent   = errors.New("message is empty")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrAlreadyStarted = errors.New("session already started")
)

type Session struct {
	baseURL string
	token   string
	http    *http.Client
	log     *slog.Logger

	timeline *Timeline
	state    atomic.Int32
	changes  chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Session)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// NewSession targets the server at baseURL (http or https) and
// authenticates with token.
func NewSession(baseURL, token string, opts ...Option) *Session {
	s := &Session{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     http.DefaultClient,
		log:      slog.Default(),
		timeline: NewTimeline(),
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Messages() []models.Message {
	return s.timeline.Messages()
}

// Changes is signalled, coalesced, whenever the timeline grows.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Start subscribes to the live channel and loads the backlog concurrently.
// It returns once both are done and the session is Live.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Disconnected), int32(Subscribing)) {
		return ErrAlreadyStarted
	}
	// A subscription that dropped on its own leaves its loops behind.
	s.stop()

	runCtx, cancel := context.WithCancel(context.Background())
	live := make(chan models.Message, 64)
	backlog := make(chan []models.Message, 1)
	merged := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mergeLoop(runCtx, backlog, live, merged)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn, err := s.dial(gctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.readLoop(runCtx, conn, live)
		}()
		return nil
	})
	g.Go(func() error {
		msgs, err := s.History(gctx)
		if err != nil {
			return err
		}
		backlog <- msgs
		return nil
	})

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := g.Wait(); err != nil {
		s.Close()
		return err
	}
	select {
	case <-merged:
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
	s.state.CompareAndSwap(int32(Subscribing), int32(Live))
	return nil
}

func (s *Session) mergeLoop(ctx context.Context, backlog <-chan []models.Message, live <-chan models.Message, merged chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgs := <-backlog:
			s.timeline.MergeBacklog(msgs)
			close(merged)
			backlog = nil
			s.notify()
		case msg := <-live:
			if s.timeline.Add(msg) {
				s.notify()
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, live chan<- models.Message) {
	for {
		var env ws.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() == nil {
				s.log.Warn("subscription closed", "error", err)
				s.state.Store(int32(Disconnected))
				s.notify()
			}
			return
		}
		if env.Event != chat.EventNewMessage {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			s.log.Warn("dropping malformed event", "event", env.Event, "error", err)
			continue
		}
		select {
		case live <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Close unsubscribes and stops the background loops.
func (s *Session) Close() {
	s.stop()
	s.state.Store(int32(Disconnected))
}

func (s *Session) stop() {
	s.mu.Lock()
	cancel, conn := s.cancel, s.conn
	s.cancel, s.conn = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	s.wg.Wait()
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	u := s.baseURL + "/ws?" + url.Values{"token": {s.token}, "channel": {chat.Channel}}.Encode()
	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: s.http})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	// Publishes are only guaranteed to reach us after the confirmation.
	var env ws.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "no confirmation")
		return nil, fmt.Errorf("await subscription: %w", err)
	}
	if env.Event != ws.EventSubscribed {
		_ = conn.Close(websocket.StatusProtocolError, "unexpected first event")
		return nil, fmt.Errorf("await subscription: unexpected event %q", env.Event)
	}
	return conn, nil
}

// History fetches the full backlog.
func (s *Session) History(ctx context.Context) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.do(ctx, http.MethodGet, "/api/v1/messages", nil, &msgs); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

// Send posts content. The message is not added locally: it shows up when
// its broadcast comes back on the subscription.
func (s *Session) Send(ctx context.Context, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyContent
	}
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	if err := s.do(ctx, http.MethodPost, "/api/v1/messages", body, &msg); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

func (s *Session) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
