package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/checkout"
	"github.com/imrishuroy/go-callback-reconciler/internal/config"
	"github.com/imrishuroy/go-callback-reconciler/internal/logging"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-callback-reconciler/internal/validation"
)

// RegisterCheckoutRoutes registers plan listing and checkout creation.
func RegisterCheckoutRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()

	r.GET("/plans", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"plans": cfg.Plans})
	})

	r.POST("/checkout", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateCheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		plan, ok := findPlan(cfg.Plans, req.PlanID)
		if !ok {
			writeError(c, cfg.logger(), fmt.Errorf("%w: %s", apperr.ErrPlanNotFound, req.PlanID))
			return
		}

		now := time.Now().UTC()
		co := checkout.Checkout{
			CheckoutID:  uuid.NewString(),
			ClientID:    clientID(c),
			PlanID:      plan.ID,
			Email:       req.Email,
			AmountCents: plan.PriceCents,
			Free:        plan.Free(),
			Status:      checkout.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		// free plans skip the gateway
		if co.Free {
			co.Status = checkout.StatusPaid
		}

		if err := cfg.Checkouts.Create(ctx, co); err != nil {
			writeError(c, cfg.logger(), err)
			return
		}

		redirect, err := redirectURL(cfg.Payment, co)
		if err != nil {
			writeError(c, cfg.logger(), err)
			return
		}

		c.Header("Location", "/checkouts/"+co.CheckoutID)
		c.JSON(http.StatusCreated, gin.H{
			"checkout_id":  co.CheckoutID,
			"status":       co.Status,
			"redirect_url": redirect,
		})
	})

	r.GET("/checkouts/:id", func(c *gin.Context) {
		id := c.Param("id")
		co, err := cfg.Checkouts.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, cfg.logger(), err)
			return
		}
		if co == nil {
			writeError(c, cfg.logger(), fmt.Errorf("%w: %s", apperr.ErrCheckoutNotFound, id))
			return
		}
		c.JSON(http.StatusOK, co)
	})

	r.POST("/checkouts/:id/cancel", func(c *gin.Context) {
		id := c.Param("id")
		owner, _ := existingClientID(c)
		if err := cfg.Checkouts.Cancel(c.Request.Context(), id, owner); err != nil {
			writeError(c, cfg.logger(), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"checkout_id": id, "status": checkout.StatusCanceled})
	})
}

// gatewayCancel cancels the caller's pending checkout when the gateway
// returns with result=cancel, so the reconciliation that follows reports
// it as canceled.
func gatewayCancel(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Request.URL.Query()
		id := q.Get(reconcile.KeyCheckoutID)
		if q.Get(reconcile.KeyResult) != resultCancel || id == "" {
			return
		}
		owner, ok := existingClientID(c)
		if !ok {
			return
		}
		log := logging.FromGin(cfg.logger(), c).With(slog.String("checkout_id", id))
		err := cfg.Checkouts.Cancel(c.Request.Context(), id, owner)
		switch {
		case err == nil:
			log.Info("checkout canceled at gateway")
		case errors.Is(err, apperr.ErrStatusMismatch), errors.Is(err, apperr.ErrCheckoutNotFound):
			log.Debug("gateway cancel ignored", slog.Any("err", err))
		default:
			log.Error("gateway cancel failed", slog.Any("err", err))
		}
	}
}

const resultCancel = "cancel"

func findPlan(plans []config.Plan, id string) (config.Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return config.Plan{}, false
}

// redirectURL is where the browser goes after creating co: the payment
// success page for free plans, the gateway otherwise. The gateway returns
// to /checkout/redirect with checkoutId and result appended.
func redirectURL(p config.Payment, co checkout.Checkout) (string, error) {
	base := strings.TrimRight(p.ReturnURL, "/")
	if co.Free {
		q := url.Values{}
		q.Set(reconcile.KeyFree, "true")
		q.Set(reconcile.KeySessionID, co.CheckoutID)
		return base + "/payment/success?" + q.Encode(), nil
	}

	u, err := url.Parse(p.GatewayURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set(reconcile.KeyCheckoutID, co.CheckoutID)
	q.Set("return_url", base+"/checkout/redirect")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
