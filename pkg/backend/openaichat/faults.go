package openaichat

import (
	"context"
	"net"
	"net/http"

	"github.com/go-go-golems/mangiafuoco/pkg/backend"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// classifyError maps transport and API errors onto the fault taxonomy so the
// orchestrator can tell transient conditions from structural failures.
func classifyError(err error) *backend.Fault {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return &backend.Fault{Kind: classifyStatus(apiErr.HTTPStatusCode), Detail: apiErr.Message}
	}

	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return &backend.Fault{Kind: classifyStatus(reqErr.HTTPStatusCode), Detail: reqErr.Error()}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &backend.Fault{Kind: backend.FaultTimeout, Detail: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &backend.Fault{Kind: backend.FaultTimeout, Detail: err.Error()}
		}
		return &backend.Fault{Kind: backend.FaultConnection, Detail: err.Error()}
	}

	return &backend.Fault{Kind: backend.FaultConnection, Detail: err.Error()}
}

func classifyStatus(status int) backend.FaultKind {
	switch {
	case status == http.StatusTooManyRequests:
		return backend.FaultRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return backend.FaultTimeout
	case status == http.StatusServiceUnavailable || status == 529:
		return backend.FaultOverloaded
	case status >= 500:
		return backend.FaultOverloaded
	case status >= 400:
		// Bad request, auth failure, unknown model: retrying will not help,
		// but the user gets the provider's explanation in the outcome.
		return backend.FaultInvalidRequest
	default:
		return backend.FaultConnection
	}
}
