package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-callback-reconciler/internal/callbacks"
	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

type navigationResponse struct {
	Target  string `json:"target"`
	DelayMS int64  `json:"delay_ms"`
}

type outcomeResponse struct {
	Flow       string              `json:"flow"`
	Generation uint64              `json:"generation"`
	State      string              `json:"state"`
	Detail     string              `json:"detail,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Message    string              `json:"message,omitempty"`
	Navigation *navigationResponse `json:"navigation,omitempty"`
	RetryURL   string              `json:"retry_url,omitempty"`
}

func toResponse(flow string, snap reconcile.Snapshot, retryURL string) outcomeResponse {
	resp := outcomeResponse{
		Flow:       flow,
		Generation: snap.Generation,
		State:      snap.Outcome.State.String(),
		Detail:     snap.Outcome.Detail,
		Reason:     string(snap.Outcome.Reason),
		Message:    snap.Outcome.Message,
	}
	if snap.Navigation != nil {
		resp.Navigation = &navigationResponse{
			Target:  snap.Navigation.Target,
			DelayMS: snap.Navigation.Delay.Milliseconds(),
		}
	}
	if snap.Outcome.State == reconcile.Failed {
		resp.RetryURL = retryURL
	}
	return resp
}

// outcomeStatus maps an outcome to its HTTP status.
func outcomeStatus(o reconcile.Outcome) int {
	switch {
	case o.State == reconcile.Succeeded:
		return http.StatusOK
	case o.Reason == reconcile.ReasonMissingParameter:
		return http.StatusBadRequest
	case o.Reason == reconcile.ReasonBackendRejected:
		return http.StatusUnprocessableEntity
	case o.Reason == reconcile.ReasonNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusAccepted
	}
}

type headings struct{ success, failure string }

var pageHeadings = map[string]headings{
	callbacks.FlowAuth:           {"Login realizado com sucesso", "Falha na autenticação"},
	callbacks.FlowCheckout:       {"Pagamento confirmado", "Pagamento não confirmado"},
	callbacks.FlowPaymentSuccess: {"Assinatura ativada", "Não foi possível ativar a assinatura"},
}

type pageView struct {
	Flow     string
	State    string
	Heading  string
	Detail   string
	Message  string
	Target   string
	RetryURL string
	BackURL  string
}

// renderOutcome writes snap as JSON or as an HTML page, depending on the
// Accept header. An immediate HTML navigation is a 303.
func renderOutcome(c *gin.Context, flow string, snap reconcile.Snapshot) {
	retryURL := c.Request.URL.RequestURI()
	status := outcomeStatus(snap.Outcome)

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) != gin.MIMEHTML {
		c.JSON(status, toResponse(flow, snap, retryURL))
		return
	}

	nav := snap.Navigation
	if nav != nil && nav.Delay <= 0 {
		c.Redirect(http.StatusSeeOther, nav.Target)
		return
	}

	h := pageHeadings[flow]
	view := pageView{
		Flow:     flow,
		State:    snap.Outcome.State.String(),
		Heading:  h.failure,
		Detail:   snap.Outcome.Detail,
		Message:  snap.Outcome.Message,
		RetryURL: retryURL,
		BackURL:  "/",
	}
	if nav != nil {
		view.Heading = h.success
		view.Target = nav.Target
		secs := int64(nav.Delay.Round(time.Second) / time.Second)
		c.Header("Refresh", strconv.FormatInt(secs, 10)+"; url="+nav.Target)
	}
	c.HTML(status, "callback.html", view)
}
