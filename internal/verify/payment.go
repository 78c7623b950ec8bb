package verify

import (
	"context"

	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

// PaymentSuccess backs the payment success page. Both of its parameters are
// optional: a session_id is always checked with Session, free=true alone
// confirms a free plan, and a bare visit is accepted as is.
type PaymentSuccess struct {
	Session reconcile.Verifier
}

func (p PaymentSuccess) Verify(ctx context.Context, params reconcile.Params) (reconcile.Verdict, error) {
	if _, ok := params.Get(reconcile.KeySessionID); ok && p.Session != nil {
		return p.Session.Verify(ctx, params)
	}
	if free, _ := params.Get(reconcile.KeyFree); free == "true" {
		return reconcile.Verdict{Success: true, Payload: "free"}, nil
	}
	return reconcile.Verdict{Success: true}, nil
}
