package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imrishuroy/go-callback-reconciler/internal/testutil"
)

const table = "idempotency-table"

func newTestStore() (*Store, *testutil.DynamoDB) {
	db := testutil.NewDynamoDB(map[string]string{table: "idempotency_key"})
	return NewStore(db, table, 48*time.Hour), db
}

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()
	key := "checkout:c1"

	created, err := s.CreateIfNotExists(ctx, key, "checkout")
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, "checkout")
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress || rec.Flow != "checkout" || rec.Attempts != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := s.MarkDone(ctx, key, `{"success":true}`); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if got := db.String(table, key, "status"); got != StatusDone {
		t.Fatalf("status not updated to DONE, got %q", got)
	}
	if got := db.String(table, key, "response_body"); got != `{"success":true}` {
		t.Fatalf("response_body not set correctly: %q", got)
	}

	if _, err := s.CreateIfNotExists(ctx, "checkout:c2", "checkout"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkFailed(ctx, "checkout:c2", "failed-reason"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if got := db.String(table, "checkout:c2", "status"); got != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %q", got)
	}
	if got := db.String(table, "checkout:c2", "note"); got != "failed-reason" {
		t.Fatalf("note not set, got %q", got)
	}
}

func TestSettle_OnlyFromInProgress(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()
	key := "checkout:c3"

	if _, err := s.CreateIfNotExists(ctx, key, "checkout"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDone(ctx, key, `{"success":true}`); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	// a stale claimer settling late must not overwrite DONE
	if err := s.MarkFailed(ctx, key, "timeout"); !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed, got %v", err)
	}
	if err := s.MarkDone(ctx, key, `{"success":false}`); !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed, got %v", err)
	}
	if got := db.String(table, key, "status"); got != StatusDone {
		t.Fatalf("DONE overwritten, got %q", got)
	}
	if got := db.String(table, key, "response_body"); got != `{"success":true}` {
		t.Fatalf("response_body overwritten: %q", got)
	}
	if got := db.String(table, key, "note"); got != "" {
		t.Fatalf("note must not be set, got %q", got)
	}
}

func TestSettle_UnclaimedKey(t *testing.T) {
	s, db := newTestStore()

	if err := s.MarkDone(context.Background(), "ghost", "{}"); !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed, got %v", err)
	}
	if err := s.MarkFailed(context.Background(), "ghost", "x"); !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed, got %v", err)
	}
	if db.Item(table, "ghost") != nil {
		t.Fatal("settling must not create records")
	}
}

func TestReopen_OnlyFromFailed(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, "auth:k", "auth"); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Reopen(ctx, "auth:k")
	if err != nil {
		t.Fatalf("Reopen error: %v", err)
	}
	if ok {
		t.Fatalf("IN_PROGRESS record must not be reopened")
	}

	if err := s.MarkFailed(ctx, "auth:k", "network"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Reopen(ctx, "auth:k")
	if err != nil || !ok {
		t.Fatalf("expected FAILED record to reopen, got ok=%v err=%v", ok, err)
	}
	rec, _ := s.Get(ctx, "auth:k")
	if rec.Status != StatusInProgress || rec.Attempts != 2 {
		t.Fatalf("expected IN_PROGRESS with 2 attempts after reopen, got %+v", rec)
	}

	if ok, _ := s.Reopen(ctx, "missing"); ok {
		t.Fatal("missing record must not reopen")
	}
}

func TestGet_MissingAndErrors(t *testing.T) {
	s, db := newTestStore()

	rec, err := s.Get(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", rec, err)
	}

	boom := errors.New("boom")
	db.Err = boom
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if _, err := s.CreateIfNotExists(context.Background(), "nope", "auth"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if _, err := s.Reopen(context.Background(), "nope"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
