package checkout

import "time"

// Checkout statuses
const (
	StatusPending  = "PENDING"
	StatusPaid     = "PAID"
	StatusFailed   = "FAILED"
	StatusCanceled = "CANCELED"
)

// CancelReasonUser is the failure reason of checkouts the buyer canceled.
const CancelReasonUser = "canceled_by_user"

// Checkout represents the item stored in the checkouts DynamoDB table.
type Checkout struct {
	CheckoutID    string    `dynamodbav:"checkout_id" json:"checkout_id"` // PK
	ClientID      string    `dynamodbav:"client_id,omitempty" json:"-"`
	PlanID        string    `dynamodbav:"plan_id" json:"plan_id"`
	Email         string    `dynamodbav:"email,omitempty" json:"email,omitempty"`
	AmountCents   int64     `dynamodbav:"amount_cents" json:"amount_cents"`
	Free          bool      `dynamodbav:"free" json:"free"`
	Status        string    `dynamodbav:"status" json:"status"` // PENDING | PAID | FAILED | CANCELED
	FailureReason string    `dynamodbav:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// WebhookEvent is the item stored per processed gateway notification.
type WebhookEvent struct {
	EventID    string    `dynamodbav:"event_id"` // PK
	CheckoutID string    `dynamodbav:"checkout_id"`
	Status     string    `dynamodbav:"status"`
	ReceivedAt time.Time `dynamodbav:"received_at"`
	ExpiresAt  int64     `dynamodbav:"expires_at,omitempty"`
}
