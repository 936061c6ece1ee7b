// Package server wires the HTTP surface and runs it alongside the optional
// Redis relay.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nexus-chat/internal/auth"
	"nexus-chat/internal/chat"
	"nexus-chat/internal/config"
	"nexus-chat/internal/http/handlers"
	"nexus-chat/internal/http/middleware"
	"nexus-chat/internal/pubsub"
	"nexus-chat/internal/repository"
	"nexus-chat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	cfg    config.Config
	log    *slog.Logger
	engine *gin.Engine
	hub    *ws.Hub
	relay  *pubsub.RedisBroadcaster
	rdb    *redis.Client
}

// New builds the full application on top of an opened, migrated db.
func New(cfg config.Config, db *gorm.DB, log *slog.Logger) (*Server, error) {
	policy, err := chat.ParseBroadcastPolicy(cfg.BroadcastFailurePolicy)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, log: log, hub: ws.NewHub(log, cfg.SubscriberBuffer)}

	var broadcaster chat.Broadcaster = s.hub
	if cfg.BroadcastDriver == config.BroadcastRedis {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.relay = pubsub.NewRedisBroadcaster(s.rdb, cfg.RedisChannelPrefix, log)
		broadcaster = s.relay
	}

	users := repository.NewUserRepository(db)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	resolver := middleware.Resolver{Tokens: tokens, Users: users}
	service := chat.NewService(repository.NewMessageRepository(db), broadcaster, log,
		chat.WithBroadcastPolicy(policy),
		chat.WithMaxContentLength(cfg.MaxContentLength),
	)

	s.engine = Router(log, Handlers{
		Auth:     &handlers.AuthHandler{Users: users, Tokens: tokens},
		Messages: &handlers.MessageHandler{Chat: service},
		Users:    &handlers.UserHandler{Users: users},
		WS:       &handlers.WSHandler{Hub: s.hub, Identity: resolver, WSInsecureSkipVerify: cfg.WSInsecureSkipVerify},
		Health:   &handlers.HealthHandler{DB: sqlDB},
	}, resolver)
	return s, nil
}

type Handlers struct {
	Auth     *handlers.AuthHandler
	Messages *handlers.MessageHandler
	Users    *handlers.UserHandler
	WS       *handlers.WSHandler
	Health   *handlers.HealthHandler
}

func Router(log *slog.Logger, h Handlers, resolver middleware.Resolver) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	r.GET("/healthz", h.Health.Check)
	r.POST("/api/v1/auth/register", h.Auth.Register)
	r.POST("/api/v1/auth/login", h.Auth.Login)
	r.GET("/ws", h.WS.Handle)

	authed := r.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(resolver))
	authed.GET("/messages", h.Messages.History)
	authed.POST("/messages", h.Messages.Post)
	authed.GET("/users", h.Users.List)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close releases the Redis connection, if any. Run does this on shutdown.
func (s *Server) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// RunRelay forwards broadcasts from other instances into the local hub
// until ctx is done. Without a Redis broadcaster it returns immediately.
func (s *Server) RunRelay(ctx context.Context, ready chan<- struct{}) error {
	if s.relay == nil {
		if ready != nil {
			close(ready)
		}
		return nil
	}
	return s.relay.Relay(ctx, s.hub, ready, chat.Channel)
}

// Run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if s.relay != nil {
		g.Go(func() error { return s.RunRelay(ctx, nil) })
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		_ = s.Close()
		return err
	})
	return g.Wait()
}
