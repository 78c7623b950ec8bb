package callbacks

import (
	"log/slog"
	"net/http"

	"github.com/imrishuroy/go-callback-reconciler/internal/config"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-callback-reconciler/internal/storage"
	"github.com/imrishuroy/go-callback-reconciler/internal/verify"
)

// Flow names, also used as ledger key prefixes and metric dimensions.
const (
	FlowAuth           = "auth"
	FlowCheckout       = "checkout"
	FlowPaymentSuccess = "payment_success"
)

// Display messages of the callback pages.
const (
	MsgMissingToken      = "Nenhum token de autenticação encontrado"
	MsgMissingCheckout   = "Nenhum checkout informado"
	MsgAuthNetworkError  = "Erro ao processar autenticação. Tente novamente."
	MsgCheckoutRejected  = "Não foi possível confirmar o pagamento"
	MsgPaymentNetworkErr = "Erro ao verificar o pagamento. Tente novamente."
)

// FlowDeps are the backends the flows verify against.
type FlowDeps struct {
	Checkouts  verify.CheckoutReader
	Ledger     verify.LedgerStore
	HTTPClient *http.Client
	Log        *slog.Logger
}

// Flows builds the three callback flows from cfg.
func Flows(cfg config.Config, deps FlowDeps) []reconcile.Flow {
	bounded := func(v reconcile.Verifier) reconcile.Verifier {
		if cfg.VerifyTimeout > 0 {
			return reconcile.WithTimeout(v, cfg.VerifyTimeout)
		}
		return v
	}
	// Only backend round trips go through the ledger. A token must be
	// checked on every callback since it can expire between two of them.
	ledgered := func(flow, keyParam string, v reconcile.Verifier) reconcile.Verifier {
		if deps.Ledger != nil {
			v = verify.WithLedger(deps.Ledger, flow, keyParam, v, deps.Log)
		}
		return bounded(v)
	}

	checkoutBy := func(param string) reconcile.Verifier {
		if cfg.Payment.StatusURL != "" {
			return verify.NewRemote(cfg.Payment.StatusURL, param, deps.HTTPClient)
		}
		return verify.NewCheckout(deps.Checkouts, param)
	}

	return []reconcile.Flow{
		{
			Name:           FlowAuth,
			RequiredKeys:   []string{reconcile.KeyToken},
			Verifier:       bounded(verify.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.Issuer)),
			SuccessTarget:  cfg.Navigation.AuthTarget,
			SuccessDelay:   0,
			MissingMessage: MsgMissingToken,
			NetworkMessage: MsgAuthNetworkError,
			StoreKey:       storage.AuthTokenKey,
			StoreParam:     reconcile.KeyToken,
		},
		{
			Name:            FlowCheckout,
			RequiredKeys:    []string{reconcile.KeyCheckoutID},
			Verifier:        ledgered(FlowCheckout, reconcile.KeyCheckoutID, checkoutBy(reconcile.KeyCheckoutID)),
			SuccessTarget:   cfg.Navigation.CheckoutTarget,
			SuccessDelay:    cfg.Navigation.RedirectDelay,
			ForwardParams:   map[string]string{reconcile.KeyCheckoutID: reconcile.KeySessionID},
			MissingMessage:  MsgMissingCheckout,
			RejectedMessage: MsgCheckoutRejected,
			NetworkMessage:  MsgPaymentNetworkErr,
		},
		{
			Name: FlowPaymentSuccess,
			Verifier: ledgered(FlowPaymentSuccess, reconcile.KeySessionID, verify.PaymentSuccess{
				Session: checkoutBy(reconcile.KeySessionID),
			}),
			SuccessTarget:   cfg.Navigation.PaymentSuccessTarget,
			SuccessDelay:    cfg.Navigation.RedirectDelay,
			RejectedMessage: MsgCheckoutRejected,
			NetworkMessage:  MsgPaymentNetworkErr,
		},
	}
}
