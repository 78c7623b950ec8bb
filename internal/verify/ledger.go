package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

// LedgerStore is the idempotency store used to de-duplicate verifications.
type LedgerStore interface {
	CreateIfNotExists(ctx context.Context, key, flow string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string) error
	MarkFailed(ctx context.Context, key, note string) error
	Reopen(ctx context.Context, key string) (bool, error)
}

// Ledger lets one verification per callback key run across instances.
// Successful verdicts are replayed; rejected or errored ones leave the key
// FAILED so an explicit retry reopens it.
type Ledger struct {
	store    LedgerStore
	flow     string
	keyParam string
	next     reconcile.Verifier
	log      *slog.Logger
}

// WithLedger wraps next. Params without keyParam bypass the ledger.
func WithLedger(store LedgerStore, flow, keyParam string, next reconcile.Verifier, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{store: store, flow: flow, keyParam: keyParam, next: next, log: log}
}

// LedgerKey derives the ledger key of a parameter value. Values are hashed
// so tokens never land in the table.
func LedgerKey(flow, value string) string {
	sum := sha256.Sum256([]byte(value))
	return flow + ":" + hex.EncodeToString(sum[:])
}

func (l *Ledger) Verify(ctx context.Context, params reconcile.Params) (reconcile.Verdict, error) {
	value, ok := params.Get(l.keyParam)
	if !ok {
		return l.next.Verify(ctx, params)
	}
	key := LedgerKey(l.flow, value)

	created, err := l.store.CreateIfNotExists(ctx, key, l.flow)
	if err != nil {
		return reconcile.Verdict{}, fmt.Errorf("ledger create: %w", err)
	}
	if !created {
		rec, err := l.store.Get(ctx, key)
		if err != nil {
			return reconcile.Verdict{}, fmt.Errorf("ledger get: %w", err)
		}
		if rec == nil {
			return reconcile.Verdict{}, errors.New("ledger get: record vanished")
		}
		switch rec.Status {
		case idempotency.StatusDone:
			var verdict reconcile.Verdict
			if err := json.Unmarshal([]byte(rec.ResponseBody), &verdict); err != nil {
				return reconcile.Verdict{}, fmt.Errorf("ledger replay: %w", err)
			}
			return verdict, nil
		case idempotency.StatusFailed:
			reopened, err := l.store.Reopen(ctx, key)
			if err != nil {
				return reconcile.Verdict{}, fmt.Errorf("ledger reopen: %w", err)
			}
			if !reopened {
				return reconcile.Verdict{}, apperr.ErrInProgress
			}
		default:
			return reconcile.Verdict{}, apperr.ErrInProgress
		}
	}

	verdict, err := l.next.Verify(ctx, params)

	// the ledger must settle even when the caller is gone
	settle := context.WithoutCancel(ctx)
	switch {
	case err != nil:
		l.mark(l.store.MarkFailed(settle, key, err.Error()), key)
	case !verdict.Success:
		l.mark(l.store.MarkFailed(settle, key, verdict.Error), key)
	default:
		body, merr := json.Marshal(verdict)
		if merr != nil {
			l.mark(merr, key)
			break
		}
		l.mark(l.store.MarkDone(settle, key, string(body)), key)
	}
	return verdict, err
}

func (l *Ledger) mark(err error, key string) {
	if err != nil {
		l.log.Error("ledger settle failed", slog.String("flow", l.flow), slog.String("key", key), slog.Any("err", err))
	}
}
