package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-callback-reconciler/internal/aws"
	"github.com/imrishuroy/go-callback-reconciler/internal/config"
	"github.com/imrishuroy/go-callback-reconciler/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}
	log := logging.New(cfg.Env)

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Error("failed to init aws clients", slog.Any("err", err))
		os.Exit(1)
	}
	p := NewProcessor(clients, cfg.Tables.Idempotency, cfg.MetricsNamespace, cfg.LedgerTTL, log)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"invocation_id":"00000000-0000-4000-8000-000000000001","flow":"auth","state":"succeeded","generation":1,"occurred_at":"2024-01-01T00:00:00Z"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, err := p.Handle(context.Background(), event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Error("local handler error", slog.Any("err", err), slog.Int("failures", len(resp.BatchItemFailures)))
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
