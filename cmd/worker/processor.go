package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-callback-reconciler/internal/aws"
	"github.com/imrishuroy/go-callback-reconciler/internal/callbacks"
	"github.com/imrishuroy/go-callback-reconciler/internal/idempotency"
)

// MetricReconciliations counts terminal reconciliations by flow, state and reason.
const MetricReconciliations = "Reconciliations"

// MetricsEmitter publishes counters.
type MetricsEmitter interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}

// Processor turns outcome events into metrics, once per event.
type Processor struct {
	ledger   *idempotency.Store
	metrics  MetricsEmitter
	validate *validatorv10.Validate
	log      *slog.Logger
}

// NewProcessor creates a new worker processor with AWS clients injected.
func NewProcessor(clients *aws.AWSClients, idempTable, namespace string, ttl time.Duration, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		ledger:   idempotency.NewStore(clients.DynamoDB, idempTable, ttl),
		metrics:  aws.NewMetrics(clients.CloudWatch, namespace),
		validate: validatorv10.New(),
		log:      log,
	}
}

// Handle processes an SQS batch and reports the messages that failed so
// only those are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("worker error", slog.String("message_id", rec.MessageId), slog.Any("err", err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func eventKey(ev callbacks.OutcomeEvent) string {
	return "event:" + ev.InvocationID + ":" + strconv.FormatUint(ev.Generation, 10)
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev callbacks.OutcomeEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if err := p.validate.Struct(ev); err != nil {
		return fmt.Errorf("invalid outcome event: %w", err)
	}

	key := eventKey(ev)
	log := p.log.With(slog.String("key", key), slog.String("flow", ev.Flow))

	// Step 1: claim the event
	created, err := p.ledger.CreateIfNotExists(ctx, key, ev.Flow)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		existing, err := p.ledger.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("load event claim: %w", err)
		}
		switch {
		case existing == nil:
			return fmt.Errorf("event claim %s vanished", key)
		case existing.Status == idempotency.StatusDone:
			log.Info("duplicate outcome event")
			return nil
		case existing.Status == idempotency.StatusFailed:
			reopened, err := p.ledger.Reopen(ctx, key)
			if err != nil {
				return fmt.Errorf("reopen event claim: %w", err)
			}
			if !reopened {
				log.Info("outcome event taken by another worker")
				return nil
			}
		default:
			return fmt.Errorf("outcome event %s in progress", key)
		}
	}

	// Step 2: emit the metric
	dims := map[string]string{
		"Flow":   ev.Flow,
		"State":  ev.State,
		"Reason": ev.Reason,
	}
	if err := p.metrics.Count(ctx, MetricReconciliations, 1, dims); err != nil {
		if merr := p.ledger.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.Error("mark event failed", slog.Any("err", merr))
		}
		return fmt.Errorf("emit metric: %w", err)
	}

	// Step 3: settle the claim
	if err := p.ledger.MarkDone(ctx, key, rec.Body); err != nil {
		return fmt.Errorf("settle event claim: %w", err)
	}
	log.Info("outcome recorded", slog.String("state", ev.State), slog.String("reason", ev.Reason))
	return nil
}
