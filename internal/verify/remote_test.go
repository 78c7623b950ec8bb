package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

func TestRemoteVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status/ok":
			w.Write([]byte(`{"success":true,"payload":"sess-1"}`))
		case "/status/no":
			w.Write([]byte(`{"success":false,"error":"Pagamento pendente"}`))
		case "/status/bad-json":
			w.Write([]byte(`<html>`))
		case "/status/no-field":
			w.Write([]byte(`{"payload":"x"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	r := NewRemote(srv.URL+"/status/", reconcile.KeyCheckoutID, srv.Client())

	tests := []struct {
		id      string
		wantErr bool
		success bool
		payload string
		msg     string
	}{
		{"ok", false, true, "sess-1", ""},
		{"no", false, false, "", "Pagamento pendente"},
		{"bad-json", true, false, "", ""},
		{"no-field", true, false, "", ""},
		{"down", true, false, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			got, err := r.Verify(context.Background(), reconcile.Params{reconcile.KeyCheckoutID: tc.id})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got.Success != tc.success || got.Payload != tc.payload || got.Error != tc.msg {
				t.Fatalf("unexpected verdict %+v", got)
			}
		})
	}
}

func TestRemoteVerify_ClosedServerIsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRemote(url, reconcile.KeyCheckoutID, nil).Verify(context.Background(), reconcile.Params{reconcile.KeyCheckoutID: "c1"})
	if err == nil {
		t.Fatal("expected transport error")
	}
}
