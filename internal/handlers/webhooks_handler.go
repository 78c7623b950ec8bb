package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/checkout"
	"github.com/imrishuroy/go-callback-reconciler/internal/logging"
	"github.com/imrishuroy/go-callback-reconciler/internal/validation"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body,
// optionally prefixed with "sha256=".
const SignatureHeader = "X-Webhook-Signature"

// testFailureReason is used by the test tool when a FAILED event carries
// no reason.
const testFailureReason = "test_failure"

// RegisterWebhookRoutes registers the payment gateway webhook and the
// webhook test tool. Gateway webhooks must be signed with the configured
// secret. The tool answers 404 unless dev tools are enabled.
func RegisterWebhookRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/webhooks/payment", func(c *gin.Context) {
		if err := checkSignature(c, cfg.Payment.WebhookSecret); err != nil {
			if errors.Is(err, apperr.ErrBadSignature) {
				logging.FromGin(cfg.logger(), c).Warn("payment webhook rejected", slog.Any("err", err))
			}
			writeError(c, cfg.logger(), err)
			return
		}

		var req validation.PaymentWebhookRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		applyWebhook(c, cfg, req)
	})

	r.POST("/dev/webhooks/test", func(c *gin.Context) {
		if !cfg.DevTools {
			writeError(c, cfg.logger(), apperr.ErrDevToolsDisabled)
			return
		}

		var in validation.TestWebhookRequest
		if err := validation.BindAndValidate(c, &in, v); err != nil {
			return
		}

		req := validation.PaymentWebhookRequest{
			EventID:       "test-" + uuid.NewString(),
			CheckoutID:    in.CheckoutID,
			Status:        in.Status,
			FailureReason: in.FailureReason,
		}
		if req.Status == "" {
			req.Status = checkout.StatusPaid
		}
		switch {
		case req.Status == checkout.StatusFailed && req.FailureReason == "":
			req.FailureReason = testFailureReason
		case req.Status != checkout.StatusFailed:
			req.FailureReason = ""
		}
		if err := v.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "msg": err.Error()})
			return
		}
		applyWebhook(c, cfg, req)
	})
}

func applyWebhook(c *gin.Context, cfg HandlerConfig, req validation.PaymentWebhookRequest) {
	log := logging.FromGin(cfg.logger(), c).With(
		slog.String("event_id", req.EventID),
		slog.String("checkout_id", req.CheckoutID),
	)

	err := cfg.Checkouts.ApplyWebhook(c.Request.Context(), req.EventID, req.CheckoutID, req.Status, req.FailureReason)
	switch {
	case err == nil:
		log.Info("payment webhook applied", slog.String("status", req.Status))
		c.JSON(http.StatusOK, gin.H{"result": "applied", "event": req})
	case errors.Is(err, apperr.ErrDuplicateEvent):
		log.Info("payment webhook replayed")
		c.JSON(http.StatusOK, gin.H{"result": "duplicate", "event": req})
	default:
		writeError(c, cfg.logger(), err)
	}
}

// checkSignature verifies the signature header against the raw body and
// leaves the body in place for binding.
func checkSignature(c *gin.Context, secret string) error {
	body, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("read webhook body: %w", err)
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	if secret == "" {
		return fmt.Errorf("%w: no secret configured", apperr.ErrBadSignature)
	}
	header := strings.TrimPrefix(strings.TrimSpace(c.GetHeader(SignatureHeader)), "sha256=")
	got, err := hex.DecodeString(header)
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: missing or malformed %s", apperr.ErrBadSignature, SignatureHeader)
	}
	if !hmac.Equal(got, webhookSignature(secret, body)) {
		return apperr.ErrBadSignature
	}
	return nil
}

func webhookSignature(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
