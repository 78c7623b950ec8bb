package verify

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-callback-reconciler/internal/checkout"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

// Checkout status messages.
const (
	MsgCheckoutNotFound = "Checkout não encontrado"
	MsgPaymentPending   = "Pagamento ainda não confirmado. Aguarde alguns instantes e tente novamente."
	MsgPaymentDeclined  = "Pagamento recusado"
	MsgPaymentCanceled  = "Pagamento cancelado"
)

// CheckoutReader reads checkouts by id.
type CheckoutReader interface {
	Get(ctx context.Context, checkoutID string) (*checkout.Checkout, error)
}

// Checkout confirms a payment against the checkout table.
type Checkout struct {
	store CheckoutReader
	param string
}

// NewCheckout returns a verifier reading the checkout id from param.
func NewCheckout(store CheckoutReader, param string) *Checkout {
	return &Checkout{store: store, param: param}
}

// Verify succeeds when the checkout is PAID, with the plan id as payload.
func (v *Checkout) Verify(ctx context.Context, params reconcile.Params) (reconcile.Verdict, error) {
	id, ok := params.Get(v.param)
	if !ok {
		return reconcile.Verdict{Error: MsgCheckoutNotFound}, nil
	}
	c, err := v.store.Get(ctx, id)
	if err != nil {
		return reconcile.Verdict{}, fmt.Errorf("load checkout %s: %w", id, err)
	}
	if c == nil {
		return reconcile.Verdict{Error: MsgCheckoutNotFound}, nil
	}

	switch c.Status {
	case checkout.StatusPaid:
		return reconcile.Verdict{Success: true, Payload: c.PlanID}, nil
	case checkout.StatusFailed:
		msg := MsgPaymentDeclined
		if c.FailureReason != "" {
			msg += ": " + c.FailureReason
		}
		return reconcile.Verdict{Error: msg}, nil
	case checkout.StatusCanceled:
		return reconcile.Verdict{Error: MsgPaymentCanceled}, nil
	default:
		return reconcile.Verdict{Error: MsgPaymentPending}, nil
	}
}
