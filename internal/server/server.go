// Package server assembles the bridge: permission store, prompt hub, broker,
// signer client, and the Gin HTTP surface in front of them.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/bridge"
	"github.com/keyfort/provider-bridge/internal/broker"
	"github.com/keyfort/provider-bridge/internal/config"
	"github.com/keyfort/provider-bridge/internal/handlers"
	"github.com/keyfort/provider-bridge/internal/logger"
	"github.com/keyfort/provider-bridge/internal/middleware"
	"github.com/keyfort/provider-bridge/internal/permissions"
	"github.com/keyfort/provider-bridge/internal/signing"
)

// Server is the assembled bridge service.
type Server struct {
	cfg    *config.Config
	router *gin.Engine

	store  permissions.Store
	hub    *broker.Hub
	broker *broker.Broker
	signer *signing.Client

	closeStore func()
}

// New builds the server from configuration. The returned server owns the
// store connection and closes it on Shutdown.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	signer, err := signing.NewClient(signing.ClientConfig{
		BaseURL: cfg.Signer.BaseURL,
		Timeout: time.Duration(cfg.Signer.Timeout),
	}, logger.Named("signer"))
	if err != nil {
		closeStore()
		return nil, err
	}

	hub := broker.NewHub(logger.Named("hub"))
	brk := broker.New(store, hub, logger.Named("broker"))
	service := bridge.NewService(store, brk, signer, logger.Named("bridge"))

	s := &Server{
		cfg:        cfg,
		store:      store,
		hub:        hub,
		broker:     brk,
		signer:     signer,
		closeStore: closeStore,
	}
	s.router = s.buildRouter(service)
	return s, nil
}

// buildStore creates the permission store named by the configuration.
func buildStore(ctx context.Context, cfg *config.Config) (permissions.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return permissions.NewMemoryStore(), func() {}, nil

	case config.StorePostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parsing postgres connection string")
		}
		poolConfig.MaxConns = 10
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating postgres connection pool")
		}

		store := permissions.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "ensuring permission schema")
		}
		return store, pool.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, errors.Wrap(err, "pinging redis")
		}
		return permissions.NewRedisStore(client), func() { _ = client.Close() }, nil

	default:
		return nil, nil, errors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (s *Server) buildRouter(service *bridge.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.configureCORS())

	rl := middleware.NewRateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst)
	router.Use(rl.Middleware())

	healthHandler := handlers.NewHealthHandler(s.signer)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rpcHandler := handlers.NewRPCHandler(service)
	permissionHandler := handlers.NewPermissionHandler(s.store, s.broker, s.hub)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/rpc", rpcHandler.Route)

		perms := v1.Group("/permissions")
		{
			perms.GET("", permissionHandler.ListPermissions)
			perms.DELETE("", permissionHandler.RevokePermission)
			perms.GET("/requests", permissionHandler.ListPendingRequests)
			perms.POST("/requests/:id/decision", permissionHandler.DecideRequest)
		}
	}

	return router
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests and closes the store.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridge listening", zap.String("addr", s.cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.closeStore()
		return err
	case <-stop:
	case <-ctx.Done():
	}

	logger.Info("bridge shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.closeStore()
	return err
}

// configureCORS returns a configured CORS middleware
func (s *Server) configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	if len(s.cfg.CORSAllowedOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		origins := make([]string, len(s.cfg.CORSAllowedOrigins))
		for i, origin := range s.cfg.CORSAllowedOrigins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Accept",
		"X-Caller-Origin", "X-Account-Address", "X-Chain-Id",
	}

	return cors.New(corsConfig)
}
