package callbacks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

// OutcomeEvent is published once per terminal reconciliation.
type OutcomeEvent struct {
	InvocationID string    `json:"invocation_id" validate:"required,uuid"`
	Flow         string    `json:"flow" validate:"required,oneof=auth checkout payment_success"`
	State        string    `json:"state" validate:"required,oneof=succeeded failed"`
	Reason       string    `json:"reason,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	Generation   uint64    `json:"generation"`
	OccurredAt   time.Time `json:"occurred_at" validate:"required"`
}

// Publisher sends outcome events to the queue.
type Publisher interface {
	SendJSON(ctx context.Context, v any, attributes map[string]string) error
}

// StorageFunc returns the client storage of a client id.
type StorageFunc func(clientID string) reconcile.Storage

// Service opens callback mounts for incoming requests.
type Service struct {
	flows     map[string]reconcile.Flow
	storage   StorageFunc
	publisher Publisher
	log       *slog.Logger
	nowFunc   func() time.Time
}

// NewService returns a Service over flows. storage and publisher may be nil.
func NewService(flows []reconcile.Flow, storage StorageFunc, publisher Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	byName := make(map[string]reconcile.Flow, len(flows))
	for _, f := range flows {
		byName[f.Name] = f
	}
	return &Service{
		flows:     byName,
		storage:   storage,
		publisher: publisher,
		log:       log,
		nowFunc:   time.Now,
	}
}

// Flow looks a flow up by name.
func (s *Service) Flow(name string) (reconcile.Flow, bool) {
	f, ok := s.flows[name]
	return f, ok
}

// Open mounts flow for clientID. The mount lives until ctx is done or the
// caller closes it.
func (s *Service) Open(ctx context.Context, flow, clientID string) (*reconcile.Mount, error) {
	f, ok := s.flows[flow]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownFlow, flow)
	}

	var store reconcile.Storage
	if s.storage != nil && clientID != "" {
		store = s.storage(clientID)
	}

	invocationID := uuid.NewString()
	log := s.log.With(slog.String("flow", flow), slog.String("invocation_id", invocationID))

	return reconcile.NewMount(ctx, f, store, reconcile.OnTerminal(func(snap reconcile.Snapshot) {
		log.Info("callback reconciled",
			slog.String("state", snap.Outcome.State.String()),
			slog.String("reason", string(snap.Outcome.Reason)),
			slog.Uint64("generation", snap.Generation),
		)
		s.publish(context.WithoutCancel(ctx), log, OutcomeEvent{
			InvocationID: invocationID,
			Flow:         flow,
			State:        snap.Outcome.State.String(),
			Reason:       string(snap.Outcome.Reason),
			Detail:       snap.Outcome.Detail,
			ClientID:     clientID,
			Generation:   snap.Generation,
			OccurredAt:   s.nowFunc().UTC(),
		})
	})), nil
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, ev OutcomeEvent) {
	if s.publisher == nil {
		return
	}
	attrs := map[string]string{
		"flow":  ev.Flow,
		"state": ev.State,
	}
	if err := s.publisher.SendJSON(ctx, ev, attrs); err != nil {
		log.Error("publish outcome failed", slog.Any("err", err))
	}
}
