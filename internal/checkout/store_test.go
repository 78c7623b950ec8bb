package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/testutil"
)

const (
	checkoutsTable = "checkouts"
	eventsTable    = "webhook-events"
)

func newTestStore() (*Store, *testutil.DynamoDB) {
	db := testutil.NewDynamoDB(map[string]string{
		checkoutsTable: "checkout_id",
		eventsTable:    "event_id",
	})
	return NewStore(db, checkoutsTable, eventsTable), db
}

func pending(id string) Checkout {
	return Checkout{
		CheckoutID:  id,
		ClientID:    "client-1",
		PlanID:      "pro-monthly",
		AmountCents: 4990,
		Status:      StatusPending,
	}
}

func TestCreateAndGet(t *testing.T) {
	store, db := newTestStore()
	ctx := context.Background()

	if err := store.Create(ctx, pending("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	var raw Checkout
	if err := attributevalue.UnmarshalMap(db.Item(checkoutsTable, "c1"), &raw); err != nil {
		t.Fatalf("unmarshal stored item: %v", err)
	}
	if raw.CreatedAt.IsZero() || raw.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", raw)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.PlanID != "pro-monthly" || got.Status != StatusPending {
		t.Fatalf("unexpected checkout %+v", got)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing checkout, got (%v, %v)", missing, err)
	}
}

func TestCreate_DuplicateFails(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	if err := store.Create(ctx, pending("c1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, pending("c1")); !errors.Is(err, apperr.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch on duplicate, got %v", err)
	}
}

func TestUpdateStatus_Condition_SuccessAndFail(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	if err := store.Create(ctx, pending("c10")); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateStatus(ctx, "c10", StatusPending, StatusPaid, ""); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	err := store.UpdateStatus(ctx, "c10", StatusPending, StatusFailed, "late")
	if !errors.Is(err, apperr.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	got, _ := store.Get(ctx, "c10")
	if got.Status != StatusPaid {
		t.Fatalf("status must stay PAID, got %s", got.Status)
	}
}

func TestCancel_OwnerPendingOnly(t *testing.T) {
	store, db := newTestStore()
	ctx := context.Background()
	for _, id := range []string{"c20", "c21"} {
		if err := store.Create(ctx, pending(id)); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Cancel(ctx, "c20", "client-2"); !errors.Is(err, apperr.ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound for another client, got %v", err)
	}
	if err := store.Cancel(ctx, "c20", ""); !errors.Is(err, apperr.ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound without a client, got %v", err)
	}
	if err := store.Cancel(ctx, "ghost", "client-1"); !errors.Is(err, apperr.ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound, got %v", err)
	}

	if err := store.Cancel(ctx, "c20", "client-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := store.Get(ctx, "c20")
	if got.Status != StatusCanceled || got.FailureReason != CancelReasonUser {
		t.Fatalf("unexpected checkout %+v", got)
	}
	if err := store.Cancel(ctx, "c20", "client-1"); !errors.Is(err, apperr.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch on second cancel, got %v", err)
	}

	// a paid checkout cannot be canceled
	if err := store.ApplyWebhook(ctx, "evt-21", "c21", StatusPaid, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.Cancel(ctx, "c21", "client-1"); !errors.Is(err, apperr.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for paid checkout, got %v", err)
	}
	if got := db.String(checkoutsTable, "c21", "status"); got != StatusPaid {
		t.Fatalf("paid checkout changed to %q", got)
	}
}

func TestApplyWebhook_DedupesAndGuardsStatus(t *testing.T) {
	store, db := newTestStore()
	store.nowFunc = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := store.Create(ctx, pending("c1")); err != nil {
		t.Fatal(err)
	}

	if err := store.ApplyWebhook(ctx, "evt-1", "c1", StatusFailed, "card_declined"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, _ := store.Get(ctx, "c1")
	if got.Status != StatusFailed || got.FailureReason != "card_declined" {
		t.Fatalf("unexpected checkout after webhook: %+v", got)
	}
	if db.String(eventsTable, "evt-1", "checkout_id") != "c1" {
		t.Fatalf("webhook event not recorded")
	}

	if err := store.ApplyWebhook(ctx, "evt-1", "c1", StatusFailed, "card_declined"); !errors.Is(err, apperr.ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent on replay, got %v", err)
	}

	if err := store.ApplyWebhook(ctx, "evt-2", "c1", StatusPaid, ""); !errors.Is(err, apperr.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for non-pending checkout, got %v", err)
	}
	if db.Item(eventsTable, "evt-2") != nil {
		t.Fatalf("a canceled transaction must not record the event")
	}
}

func TestApplyWebhook_UnknownCheckout(t *testing.T) {
	store, _ := newTestStore()
	err := store.ApplyWebhook(context.Background(), "evt-9", "ghost", StatusPaid, "")
	if !errors.Is(err, apperr.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}
