package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCreateCheckoutRequest(t *testing.T) {
	v := New()

	if err := v.Struct(CreateCheckoutRequest{PlanID: "pro-monthly", Email: "a@b.com"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := v.Struct(CreateCheckoutRequest{PlanID: "pro-monthly", Email: "not-an-email"}); err == nil {
		t.Fatal("expected email validation error")
	}
	if err := v.Struct(CreateCheckoutRequest{Email: "a@b.com", Coupon: "BLACK FRIDAY"}); err == nil {
		t.Fatal("expected errors for missing plan and bad coupon")
	}
}

func TestPaymentWebhookRequest_FailureReasonRules(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		req   PaymentWebhookRequest
		valid bool
	}{
		{"paid", PaymentWebhookRequest{EventID: "e1", CheckoutID: "c1", Status: "PAID"}, true},
		{"failed with reason", PaymentWebhookRequest{EventID: "e1", CheckoutID: "c1", Status: "FAILED", FailureReason: "card_declined"}, true},
		{"failed without reason", PaymentWebhookRequest{EventID: "e1", CheckoutID: "c1", Status: "FAILED"}, false},
		{"paid with reason", PaymentWebhookRequest{EventID: "e1", CheckoutID: "c1", Status: "PAID", FailureReason: "x"}, false},
		{"unknown status", PaymentWebhookRequest{EventID: "e1", CheckoutID: "c1", Status: "REFUNDED"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Struct(tc.req)
			if (err == nil) != tc.valid {
				t.Fatalf("valid = %v, err = %v", tc.valid, err)
			}
		})
	}
}

func TestBindAndValidate_WritesFieldErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"plan_id":"x","email":"nope"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CreateCheckoutRequest
	if err := BindAndValidate(c, &req, New()); err == nil {
		t.Fatal("expected validation error")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"email":"email"`) {
		t.Fatalf("expected field error in body, got %s", w.Body.String())
	}
}

func TestFieldErrors_UseJSONNames(t *testing.T) {
	err := New().Struct(PaymentWebhookRequest{CheckoutID: "c1", Status: "FAILED"})
	fields := FieldErrors(err)
	if fields["event_id"] != "required" {
		t.Fatalf("expected event_id required, got %v", fields)
	}
	if fields["failure_reason"] != "required_if_failed" {
		t.Fatalf("expected failure_reason rule, got %v", fields)
	}
}
