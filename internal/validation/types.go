package validation

// CreateCheckoutRequest is the payload for POST /checkout (plan selection).
type CreateCheckoutRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Coupon string `json:"coupon,omitempty" validate:"omitempty,alphanum,max=32"`
}

// PaymentWebhookRequest is the gateway notification for POST /webhooks/payment.
type PaymentWebhookRequest struct {
	EventID       string `json:"event_id" validate:"required"`
	CheckoutID    string `json:"checkout_id" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=PAID FAILED CANCELED"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// TestWebhookRequest is the payload for POST /dev/webhooks/test. Missing
// fields are filled in by the handler.
type TestWebhookRequest struct {
	CheckoutID    string `json:"checkout_id" validate:"required"`
	Status        string `json:"status" validate:"omitempty,oneof=PAID FAILED CANCELED"`
	FailureReason string `json:"failure_reason,omitempty"`
}
