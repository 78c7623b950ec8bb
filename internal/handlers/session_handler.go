package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/callbacks"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-callback-reconciler/internal/storage"
)

// RegisterSessionRoutes registers GET /session. It reads the auth token the
// auth callback stored for the caller's client and checks it again, so an
// expired token reads as signed out.
func RegisterSessionRoutes(r gin.IRouter, cfg HandlerConfig) {
	r.GET("/session", func(c *gin.Context) {
		ctx := c.Request.Context()

		id, ok := existingClientID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
			return
		}
		token, found, err := cfg.Storage.For(id).Get(ctx, storage.AuthTokenKey)
		if err != nil {
			writeError(c, cfg.logger(), err)
			return
		}
		if !found {
			c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
			return
		}

		auth, ok := cfg.Callbacks.Flow(callbacks.FlowAuth)
		if !ok {
			writeError(c, cfg.logger(), fmt.Errorf("%w: %s", apperr.ErrUnknownFlow, callbacks.FlowAuth))
			return
		}
		verdict, err := auth.Verifier.Verify(ctx, reconcile.Params{reconcile.KeyToken: token})
		if err != nil {
			writeError(c, cfg.logger(), err)
			return
		}
		if !verdict.Success {
			c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false, "message": verdict.Error})
			return
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "subject": verdict.Payload})
	})
}
