package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-client/internal/api"
	"chat-client/internal/config"
	"chat-client/internal/engine"
	"chat-client/internal/handlers"
	"chat-client/internal/logging"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/telemetry"
	"chat-client/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, "chat-client", cfg.Environment)
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	client, jar, err := api.NewHTTPClient(cfg.APIBaseURL, log)
	if err != nil {
		log.Fatal("failed to build api client", zap.Error(err))
	}

	user, err := client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		log.Fatal("login failed", zap.Error(err))
	}
	log.Info("authenticated", zap.Int("user_id", user.ID), zap.String("username", user.Username))

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "client_audit.sessions", "chat-client", cfg.Environment, log)

	bus := ws.NewBus(cfg.WSURL, jar, log)

	eng, err := engine.New(client, bus, user, engine.Options{
		AllowRerequest: cfg.AllowRerequest,
		Audit:          audit,
	}, log)
	if err != nil {
		log.Fatal("failed to build engine", zap.Error(err))
	}

	if err := eng.Start(ctx); err != nil {
		log.Fatal("failed to start engine", zap.Error(err))
	}
	defer eng.Close(context.Background())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-client"))
	handlers.NewStateHandler(eng).Register(router)

	srv := &http.Server{Addr: cfg.DebugAddr, Handler: router}
	go func() {
		log.Info("debug server listening", zap.String("addr", cfg.DebugAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("debug server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
