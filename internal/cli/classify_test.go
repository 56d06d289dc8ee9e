package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/fault"
)

func TestClassifyInput(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		status int
		kind   domain.Kind
		code   string
		wantSt int
	}{
		{name: "backend code", input: "auth/wrong-password", kind: domain.KindAuthentication, code: "auth/wrong-password", wantSt: 401},
		{name: "network message", input: "dial tcp 10.0.0.1:443: connect: connection refused", kind: domain.KindNetwork},
		{name: "http status", input: "upstream failed", status: 503, kind: domain.KindServerFault, wantSt: 503},
		{name: "status only", status: 404, kind: domain.KindNotFound, wantSt: 404},
		{name: "path-like message", input: "open /tmp/x: permission denied", kind: domain.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := fault.Normalize(classifyInput(tt.input, tt.status), nil)
			require.NotNil(t, fe)
			assert.Equal(t, tt.kind, fe.Kind())
			assert.Equal(t, tt.code, fe.Code())
			assert.Equal(t, tt.wantSt, fe.Status())
		})
	}
}

func TestClassifyInput_UnknownBackendCodeStaysRaw(t *testing.T) {
	err := classifyInput("auth/never-heard-of-it", 0)
	var be *fault.BackendError
	assert.NotErrorAs(t, err, &be)
}
