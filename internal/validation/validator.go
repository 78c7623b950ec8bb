package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(jsonName)

	// a FAILED notification must say why, other statuses must not carry a reason
	v.RegisterStructValidation(paymentWebhookStructValidation, PaymentWebhookRequest{})

	return v
}

func paymentWebhookStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PaymentWebhookRequest)

	switch {
	case req.Status == "FAILED" && req.FailureReason == "":
		sl.ReportError(req.FailureReason, "failure_reason", "FailureReason", "required_if_failed", "")
	case req.Status != "FAILED" && req.FailureReason != "":
		sl.ReportError(req.FailureReason, "failure_reason", "FailureReason", "only_when_failed", "")
	}
}

// jsonName reports fields by their JSON name so errors match the payload.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
