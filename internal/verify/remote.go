package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

// maxStatusBody caps how much of a status response is read.
const maxStatusBody = 64 << 10

// Remote asks an HTTP status endpoint for the verdict:
// GET {base}/{id} -> {"success": bool, "payload": "...", "error": "..."}.
type Remote struct {
	client  *http.Client
	baseURL string
	param   string
}

// NewRemote returns a Remote verifier. A nil client uses http.DefaultClient.
func NewRemote(baseURL, param string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{client: client, baseURL: strings.TrimRight(baseURL, "/"), param: param}
}

type remoteVerdict struct {
	Success *bool  `json:"success"`
	Payload string `json:"payload"`
	Error   string `json:"error"`
}

// Verify returns an error for transport failures, non-2xx answers and
// bodies without a success field.
func (r *Remote) Verify(ctx context.Context, params reconcile.Params) (reconcile.Verdict, error) {
	id, ok := params.Get(r.param)
	if !ok {
		return reconcile.Verdict{Error: MsgCheckoutNotFound}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+url.PathEscape(id), nil)
	if err != nil {
		return reconcile.Verdict{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return reconcile.Verdict{}, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return reconcile.Verdict{}, fmt.Errorf("status request: unexpected status %d", resp.StatusCode)
	}

	var body remoteVerdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBody)).Decode(&body); err != nil {
		return reconcile.Verdict{}, fmt.Errorf("decode status response: %w", err)
	}
	if body.Success == nil {
		return reconcile.Verdict{}, errors.New("decode status response: missing success field")
	}
	return reconcile.Verdict{Success: *body.Success, Payload: body.Payload, Error: body.Error}, nil
}
