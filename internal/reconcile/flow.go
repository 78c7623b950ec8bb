package reconcile

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Verifier performs the backend round-trip for one redirect.
type Verifier interface {
	Verify(ctx context.Context, params Params) (Verdict, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, params Params) (Verdict, error)

func (f VerifierFunc) Verify(ctx context.Context, params Params) (Verdict, error) {
	return f(ctx, params)
}

// Storage is the client storage written on success.
type Storage interface {
	Set(ctx context.Context, key, value string) error
}

// Default display messages.
const (
	DefaultMissingMessage  = "Parâmetro obrigatório ausente"
	DefaultRejectedMessage = "Não foi possível confirmar a operação"
	DefaultNetworkMessage  = "Erro de comunicação com o servidor. Tente novamente."
)

// Flow describes one callback page: which keys it needs, how it verifies
// them, where it goes on success and what it persists.
type Flow struct {
	Name         string
	RequiredKeys []string
	Verifier     Verifier

	SuccessTarget string
	SuccessDelay  time.Duration
	// ForwardParams copies redirect params onto the success target's query,
	// keyed redirect name -> target name.
	ForwardParams map[string]string

	MissingMessage  string
	RejectedMessage string
	NetworkMessage  string

	// StoreKey receives params[StoreParam] on success. Both empty disables it.
	StoreKey   string
	StoreParam string
}

// Result is a terminal outcome plus the navigation it requires.
type Result struct {
	Outcome    Outcome
	Navigation *Navigation
}

// Reconcile runs a single reconciliation. It never retries. The returned
// error is ErrDiscarded when ctx ended before the verdict could be
// applied; every other failure is expressed as a Failed outcome.
//
// Reconcile does not bound the latency of the verifier. Wrap it with
// WithTimeout when a hard limit is needed.
func (f Flow) Reconcile(ctx context.Context, params Params, store Storage) (Result, error) {
	if _, missing := params.Missing(f.RequiredKeys); missing {
		return f.fail(EventMissingParameter, f.message(f.MissingMessage, DefaultMissingMessage)), nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, ErrDiscarded
	}

	verdict, err := f.Verifier.Verify(ctx, params)
	if ctx.Err() != nil {
		return Result{}, ErrDiscarded
	}
	if err != nil {
		return f.fail(EventErrored, f.message(f.NetworkMessage, DefaultNetworkMessage)), nil
	}
	if !verdict.Success {
		msg := verdict.Error
		if msg == "" {
			msg = f.message(f.RejectedMessage, DefaultRejectedMessage)
		}
		return f.fail(EventRejected, msg), nil
	}

	if store != nil && f.StoreKey != "" {
		if v, ok := params.Get(f.StoreParam); ok {
			if err := store.Set(ctx, f.StoreKey, v); err != nil {
				if ctx.Err() != nil {
					return Result{}, ErrDiscarded
				}
				return f.fail(EventErrored, f.message(f.NetworkMessage, DefaultNetworkMessage)), nil
			}
		}
	}

	state, _, _ := Next(Pending, EventVerified)
	return Result{
		Outcome:    Outcome{State: state, Detail: verdict.Payload},
		Navigation: &Navigation{Target: f.target(params), Delay: f.SuccessDelay},
	}, nil
}

func (f Flow) target(params Params) string {
	if len(f.ForwardParams) == 0 {
		return f.SuccessTarget
	}
	q := url.Values{}
	for from, to := range f.ForwardParams {
		if v, ok := params.Get(from); ok {
			q.Set(to, v)
		}
	}
	if len(q) == 0 {
		return f.SuccessTarget
	}
	sep := "?"
	if strings.Contains(f.SuccessTarget, "?") {
		sep = "&"
	}
	return f.SuccessTarget + sep + q.Encode()
}

func (f Flow) fail(ev Event, msg string) Result {
	state, reason, _ := Next(Pending, ev)
	return Result{Outcome: Outcome{State: state, Reason: reason, Message: msg}}
}

func (f Flow) message(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}
