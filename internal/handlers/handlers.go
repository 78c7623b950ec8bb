package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/callbacks"
	"github.com/imrishuroy/go-callback-reconciler/internal/checkout"
	"github.com/imrishuroy/go-callback-reconciler/internal/config"
	"github.com/imrishuroy/go-callback-reconciler/internal/logging"
	"github.com/imrishuroy/go-callback-reconciler/internal/storage"
)

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Callbacks *callbacks.Service
	Checkouts *checkout.Store
	Storage   *storage.Store
	Plans     []config.Plan
	Payment   config.Payment
	DevTools  bool
	Log       *slog.Logger
}

func (cfg HandlerConfig) logger() *slog.Logger {
	if cfg.Log == nil {
		return slog.Default()
	}
	return cfg.Log
}

// clientCookie identifies a browser across callback pages. Client storage
// is keyed by it.
const clientCookie = "rt_client"

const clientCookieMaxAge = 365 * 24 * 60 * 60

// clientID returns the caller's client id, issuing a new cookie when the
// request carries none.
func clientID(c *gin.Context) string {
	if id, ok := existingClientID(c); ok {
		return id
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(clientCookie, id, clientCookieMaxAge, "/", "", c.Request.TLS != nil, true)
	return id
}

// existingClientID returns the client id of the request cookie, if valid.
func existingClientID(c *gin.Context) (string, bool) {
	v, err := c.Cookie(clientCookie)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(v); err != nil {
		return "", false
	}
	return v, true
}

func writeError(c *gin.Context, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromGin(log, c).Error("request failed", slog.Any("err", err))
	}
	c.JSON(status, gin.H{"error": apperr.Kind(err)})
}
