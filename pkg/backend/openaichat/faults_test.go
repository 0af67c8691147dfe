package openaichat

import (
	"context"
	"testing"

	"github.com/go-go-golems/mangiafuoco/pkg/backend"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   backend.FaultKind
	}{
		{429, backend.FaultRateLimited},
		{408, backend.FaultTimeout},
		{504, backend.FaultTimeout},
		{503, backend.FaultOverloaded},
		{529, backend.FaultOverloaded},
		{500, backend.FaultOverloaded},
		{400, backend.FaultInvalidRequest},
		{401, backend.FaultInvalidRequest},
		{404, backend.FaultInvalidRequest},
		{422, backend.FaultInvalidRequest},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyStatus(tc.status), "status %d", tc.status)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	apiErr := &go_openai.APIError{HTTPStatusCode: 400, Message: "maximum context length exceeded"}
	fault := classifyError(apiErr)
	require.NotNil(t, fault)
	assert.Equal(t, backend.FaultInvalidRequest, fault.Kind)
	assert.Equal(t, "maximum context length exceeded", fault.Detail)
	assert.False(t, fault.Transient())
	assert.True(t, fault.Reportable())

	fault = classifyError(context.DeadlineExceeded)
	assert.Equal(t, backend.FaultTimeout, fault.Kind)
	assert.True(t, fault.Transient())
}
