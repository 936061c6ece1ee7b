package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexus-chat/internal/config"
	"nexus-chat/internal/database/dbtest"
	"nexus-chat/internal/logger"
	"nexus-chat/internal/models"
	"nexus-chat/internal/server"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		JWTSecret:              "test-secret",
		TokenTTL:               time.Hour,
		BroadcastDriver:        config.BroadcastLocal,
		BroadcastFailurePolicy: config.PolicyDegrade,
		SubscriberBuffer:       16,
		MaxContentLength:       500,
	}
	srv, err := server.New(cfg, dbtest.New(t), logger.Discard())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// signUp registers a user and returns its id and a session token.
func signUp(t *testing.T, baseURL, first, email string) (string, string) {
	t.Helper()
	var user struct {
		ID string `json:"id"`
	}
	status := postJSON(t, baseURL+"/api/v1/auth/register", map[string]string{
		"firstName": first, "email": email, "password": "password1",
	}, &user)
	require.Equal(t, http.StatusCreated, status)

	var login struct {
		AccessToken string `json:"accessToken"`
	}
	status = postJSON(t, baseURL+"/api/v1/auth/login", map[string]string{
		"email": email, "password": "password1",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	return user.ID, login.AccessToken
}

func hasMessage(s *Session, id string) bool {
	return lo.ContainsBy(s.Messages(), func(m models.Message) bool { return m.ID == id })
}

func TestSession_EndToEnd(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceID, aliceToken := signUp(t, ts.URL, "Alice", "alice@example.com")
	_, bobToken := signUp(t, ts.URL, "Bob", "bob@example.com")

	alice := NewSession(ts.URL, aliceToken, WithLogger(logger.Discard()))
	before, err := alice.Send(ctx, "before anyone listened")
	req.NoError(err)

	req.Equal(Disconnected, alice.State())
	req.NoError(alice.Start(ctx))
	defer alice.Close()
	req.Equal(Live, alice.State())
	req.True(hasMessage(alice, before.ID), "backlog is loaded on start")

	bob := NewSession(ts.URL, bobToken, WithLogger(logger.Discard()))
	req.NoError(bob.Start(ctx))
	defer bob.Close()

	hello, err := alice.Send(ctx, "hello")
	req.NoError(err)
	req.Equal("hello", hello.Content)
	req.Equal(aliceID, hello.UserID)
	req.Equal("Alice", hello.UserName)

	for _, s := range []*Session{alice, bob} {
		s := s
		req.Eventually(func() bool { return hasMessage(s, hello.ID) }, 3*time.Second, 10*time.Millisecond)
	}

	// Own broadcast comes back exactly once.
	req.Len(alice.Messages(), 2)
	req.Len(bob.Messages(), 2)
	req.Equal(hello.ID, alice.Messages()[1].ID)

	groups := GroupByDay(alice.Messages(), time.UTC, aliceID)
	req.Len(groups, 1)
	req.True(groups[0].Messages[1].Mine)

	alice.Close()
	req.Equal(Disconnected, alice.State())
}

func TestSession_SendRejectsBlankContent(t *testing.T) {
	s := NewSession("http://127.0.0.1:0", "token")
	_, err := s.Send(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestSession_StartUnauthorized(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	s := NewSession(ts.URL, "not-a-token", WithLogger(logger.Discard()))
	err := s.Start(context.Background())
	req.ErrorIs(err, ErrUnauthorized)
	req.Equal(Disconnected, s.State())

	_, err = s.Send(context.Background(), "hello")
	req.ErrorIs(err, ErrUnauthorized)
}

func TestSession_StartTwice(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	_, token := signUp(t, ts.URL, "Alice", "alice@example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := NewSession(ts.URL, token, WithLogger(logger.Discard()))
	req.NoError(s.Start(ctx))
	defer s.Close()
	req.ErrorIs(s.Start(ctx), ErrAlreadyStarted)
}

func TestSession_CrossInstanceRedis(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mr := miniredis.RunT(t)
	db := dbtest.New(t)
	cfg := config.Config{
		JWTSecret:              "test-secret",
		TokenTTL:               time.Hour,
		BroadcastDriver:        config.BroadcastRedis,
		BroadcastFailurePolicy: config.PolicyDegrade,
		RedisAddr:              mr.Addr(),
		RedisChannelPrefix:     "test",
		SubscriberBuffer:       16,
		MaxContentLength:       500,
	}

	instances := make([]*httptest.Server, 2)
	for i := range instances {
		srv, err := server.New(cfg, db, logger.Discard())
		req.NoError(err)
		t.Cleanup(func() { _ = srv.Close() })
		ready := make(chan struct{})
		go func() { _ = srv.RunRelay(ctx, ready) }()
		select {
		case <-ready:
		case <-time.After(3 * time.Second):
			t.Fatal("relay not subscribed")
		}
		instances[i] = httptest.NewServer(srv.Handler())
		t.Cleanup(instances[i].Close)
	}

	_, aliceToken := signUp(t, instances[0].URL, "Alice", "alice@example.com")
	_, bobToken := signUp(t, instances[1].URL, "Bob", "bob@example.com")

	bob := NewSession(instances[1].URL, bobToken, WithLogger(logger.Discard()))
	req.NoError(bob.Start(ctx))
	defer bob.Close()

	alice := NewSession(instances[0].URL, aliceToken, WithLogger(logger.Discard()))
	msg, err := alice.Send(ctx, "across instances")
	req.NoError(err)

	req.Eventually(func() bool { return hasMessage(bob, msg.ID) }, 3*time.Second, 10*time.Millisecond)
}

func TestSession_RestartAfterDroppedSubscription(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	_, token := signUp(t, ts.URL, "Alice", "alice@example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := NewSession(ts.URL, token, WithLogger(logger.Discard()))
	req.NoError(s.Start(ctx))

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, "network gone")
	req.Eventually(func() bool { return s.State() == Disconnected }, 3*time.Second, 10*time.Millisecond)

	req.NoError(s.Start(ctx))
	req.Equal(Live, s.State())

	msg, err := s.Send(ctx, "after reconnect")
	req.NoError(err)
	req.Eventually(func() bool { return hasMessage(s, msg.ID) }, 3*time.Second, 10*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("close blocked on loops left by the first subscription")
	}
	req.Equal(Disconnected, s.State())
}
