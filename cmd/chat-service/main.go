package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/inamkkkk/take-it-and-go/internal/auth"
	"github.com/inamkkkk/take-it-and-go/internal/cache"
	"github.com/inamkkkk/take-it-and-go/internal/config"
	chatgrpc "github.com/inamkkkk/take-it-and-go/internal/grpc"
	"github.com/inamkkkk/take-it-and-go/internal/handler"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
	"github.com/inamkkkk/take-it-and-go/internal/idgen"
	"github.com/inamkkkk/take-it-and-go/internal/metrics"
	"github.com/inamkkkk/take-it-and-go/internal/participant"
	"github.com/inamkkkk/take-it-and-go/internal/registry"
	"github.com/inamkkkk/take-it-and-go/internal/repository"
	"github.com/inamkkkk/take-it-and-go/internal/service"
	pkgconfig "github.com/inamkkkk/take-it-and-go/pkg/config"
	"github.com/inamkkkk/take-it-and-go/pkg/database"
	"github.com/inamkkkk/take-it-and-go/pkg/jwt"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
	"github.com/inamkkkk/take-it-and-go/pkg/middleware"
	"github.com/inamkkkk/take-it-and-go/pkg/pubsub"
)

func main() {
	if err := pkgconfig.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat service")

	// Credentials
	manager, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, jwt.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}
	verifier := auth.NewJWTVerifier(manager)

	// SQL connection shared by the message store and the participant directory
	var db *gorm.DB
	if cfg.UsesSQL() {
		db, err = database.New(&cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close(db)

		if cfg.Database.AutoMigrate {
			var models []interface{}
			if cfg.Store.Driver == "sql" {
				models = append(models, &repository.ChatMessageModel{})
			}
			if cfg.Participants.Driver == "sql" {
				models = append(models, &participant.DeliveryModel{})
			}
			if err := database.AutoMigrate(db, models...); err != nil {
				logger.Fatal().Err(err).Msg("failed to migrate database")
			}
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")
	}

	repo, err := newMessageRepository(cfg, db)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to initialize message store")
	}
	defer repo.Close()

	// Redis client shared by the history cache and the room directory
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	var historyCache cache.HistoryCache
	if cfg.Cache.Enabled {
		historyCache = cache.NewRedisHistoryCache(redisClient, cfg.Cache.KeyPrefix)
	}

	var reg registry.Registry = registry.NoopRegistry{}
	if cfg.Registry.Driver == "redis" {
		reg = registry.NewRedisRegistry(redisClient, cfg.Registry)
	}
	defer reg.Close()

	var directory participant.Directory = participant.OpenDirectory{}
	if cfg.Participants.Driver == "sql" {
		directory = participant.NewGormDirectory(db)
	}

	publisher, err := pubsub.NewPublisher(cfg.Events)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to initialize event publisher")
	}
	if publisher != nil {
		defer publisher.Close()
		logger.Info().Str("driver", cfg.Events.Driver).Msg("domain events enabled")
	}

	ids, err := idgen.New(cfg.IDGen)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize id generator")
	}

	// Core
	wsHub := hub.NewHub(cfg.WebSocket)
	history := service.NewHistoryService(repo, historyCache, cfg.Cache.TTL, directory, cfg.Chat.StoreTimeout)
	chatSvc := service.NewChatService(service.Dependencies{
		Hub:       wsHub,
		Repo:      repo,
		History:   history,
		Directory: directory,
		Registry:  reg,
		Publisher: publisher,
		IDs:       ids,
		Config:    cfg.Chat,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := chatSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start chat service")
	}
	defer chatSvc.Stop()

	// gRPC health
	var grpcServer *chatgrpc.Server
	if cfg.GRPC.Enabled {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		grpcServer, err = chatgrpc.StartGRPCServer(grpcAddr, log.Component("grpc"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start grpc server")
		}
		defer grpcServer.GracefulStop()
	}

	// HTTP
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.GinMiddleware(log.Component("http")))
	router.Use(metrics.GinMiddleware())

	handler.NewWSHandler(wsHub, chatSvc, verifier, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(history, middleware.NewAuthMiddleware(verifier), wsHub).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("address", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat service")

	if grpcServer != nil {
		grpcServer.Drain()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	wsHub.CloseAll()

	logger.Info().Msg("chat service stopped")
}

func newMessageRepository(cfg *config.Config, db *gorm.DB) (repository.MessageRepository, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return repository.NewMemoryMessageRepository(), nil
	case "sql":
		return repository.NewGormMessageRepository(db), nil
	case "cassandra":
		return repository.NewCassandraMessageRepository(cfg.Cassandra)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
