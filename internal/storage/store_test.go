package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/imrishuroy/go-callback-reconciler/internal/testutil"
)

func TestClientStorage_SetOverwritesAndScopes(t *testing.T) {
	db := testutil.NewDynamoDB(map[string]string{"client-storage": "storage_key"})
	s := NewStore(db, "client-storage")
	ctx := context.Background()

	alice := s.For("alice")
	bob := s.For("bob")

	if err := alice.Set(ctx, AuthTokenKey, "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := alice.Set(ctx, AuthTokenKey, "def"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, ok, err := alice.Get(ctx, AuthTokenKey)
	if err != nil || !ok || v != "def" {
		t.Fatalf("expected def, got %q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := bob.Get(ctx, AuthTokenKey); ok {
		t.Fatalf("bob must not see alice's token")
	}
	if db.String("client-storage", "alice#auth_token", "client_id") != "alice" {
		t.Fatalf("client id not stored")
	}
}

func TestClientStorage_RequiresClient(t *testing.T) {
	db := testutil.NewDynamoDB(map[string]string{"client-storage": "storage_key"})
	s := NewStore(db, "client-storage")
	if err := s.For("").Set(context.Background(), AuthTokenKey, "abc"); !errors.Is(err, ErrNoClient) {
		t.Fatalf("expected ErrNoClient, got %v", err)
	}
	if db.Calls["PutItem"] != 0 {
		t.Fatalf("no write expected without client id")
	}
}
