package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-callback-reconciler/internal/aws"
	"github.com/imrishuroy/go-callback-reconciler/internal/callbacks"
	"github.com/imrishuroy/go-callback-reconciler/internal/checkout"
	"github.com/imrishuroy/go-callback-reconciler/internal/config"
	"github.com/imrishuroy/go-callback-reconciler/internal/handlers"
	"github.com/imrishuroy/go-callback-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-callback-reconciler/internal/logging"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-callback-reconciler/internal/storage"
)

func setupRouter(cfg handlers.HandlerConfig, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterCallbackRoutes(r, cfg)
	handlers.RegisterCheckoutRoutes(r, cfg)
	handlers.RegisterWebhookRoutes(r, cfg)
	handlers.RegisterSessionRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}
	log := logging.New(cfg.Env)
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Error("failed to init aws clients", slog.Any("err", err))
		os.Exit(1)
	}

	checkouts := checkout.NewStore(clients.DynamoDB, cfg.Tables.Checkouts, cfg.Tables.WebhookEvents)
	clientStorage := storage.NewStore(clients.DynamoDB, cfg.Tables.ClientStorage)
	flows := callbacks.Flows(cfg, callbacks.FlowDeps{
		Checkouts:  checkouts,
		Ledger:     idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.LedgerTTL),
		HTTPClient: &http.Client{Timeout: cfg.VerifyTimeout},
		Log:        log,
	})
	svc := callbacks.NewService(
		flows,
		func(clientID string) reconcile.Storage { return clientStorage.For(clientID) },
		aws.NewPublisher(clients.SQS, cfg.QueueURL),
		log,
	)

	r := setupRouter(handlers.HandlerConfig{
		Callbacks: svc,
		Checkouts: checkouts,
		Storage:   clientStorage,
		Plans:     cfg.Plans,
		Payment:   cfg.Payment,
		DevTools:  cfg.DevTools,
		Log:       log,
	}, log)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		log.Info("running local server", slog.String("addr", cfg.Addr))
		if err := r.Run(cfg.Addr); err != nil {
			log.Error("failed to run local server", slog.Any("err", err))
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
