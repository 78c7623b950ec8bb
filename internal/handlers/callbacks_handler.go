package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-callback-reconciler/internal/callbacks"
	"github.com/imrishuroy/go-callback-reconciler/internal/logging"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

// RegisterCallbackRoutes registers the callback pages and their event
// stream. It installs the page templates on r.
func RegisterCallbackRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.SetHTMLTemplate(Templates())

	r.GET("/auth/callback", reconcileHandler(cfg, callbacks.FlowAuth))
	r.GET("/checkout/redirect", gatewayCancel(cfg), reconcileHandler(cfg, callbacks.FlowCheckout))
	r.GET("/payment/success", reconcileHandler(cfg, callbacks.FlowPaymentSuccess))
	r.GET("/callbacks/:flow/events", streamHandler(cfg))
}

// reconcileHandler mounts flow for the request, waits for the terminal
// outcome and renders it. Leaving the page cancels the request context and
// with it the pending verification.
func reconcileHandler(cfg HandlerConfig, flow string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logging.FromGin(cfg.logger(), c)

		m, err := cfg.Callbacks.Open(c.Request.Context(), flow, clientID(c))
		if err != nil {
			writeError(c, cfg.logger(), err)
			return
		}
		defer m.Close()

		snap, err := m.Run(reconcile.FromValues(c.Request.URL.Query()))
		if err != nil {
			log.Debug("callback abandoned", slog.String("flow", flow), slog.Any("err", err))
			c.AbortWithStatus(http.StatusRequestTimeout)
			return
		}
		renderOutcome(c, flow, snap)
	}
}

// streamHandler serves GET /callbacks/:flow/events: a pending event, then
// the terminal one, as server-sent events named after the state.
func streamHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow := c.Param("flow")
		m, err := cfg.Callbacks.Open(c.Request.Context(), flow, clientID(c))
		if err != nil {
			writeError(c, cfg.logger(), err)
			return
		}
		defer m.Close()

		updates, unsubscribe := m.Subscribe()
		defer unsubscribe()

		params := reconcile.FromValues(c.Request.URL.Query())
		log := logging.FromGin(cfg.logger(), c)
		go func() {
			if _, err := m.Run(params); err != nil {
				log.Debug("stream abandoned", slog.String("flow", flow), slog.Any("err", err))
			}
		}()

		retryURL := c.Request.URL.RequestURI()
		done := c.Request.Context().Done()
		c.Header("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			select {
			case snap, ok := <-updates:
				if !ok {
					return false
				}
				c.SSEvent(snap.Outcome.State.String(), toResponse(flow, snap, retryURL))
				return !snap.Outcome.State.Terminal()
			case <-done:
				return false
			}
		})
	}
}
