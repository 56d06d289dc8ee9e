package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vietddude/faultline/internal/core/domain"
)

func TestNew_DefaultsUserMessageFromKind(t *testing.T) {
	for _, k := range domain.Kinds {
		e := New(k, "dev")
		assert.Equal(t, UserMessageFor(k), e.UserMessage(), k.String())
		assert.NotEmpty(t, e.UserMessage())
	}
}

func TestNew_Options(t *testing.T) {
	cause := errors.New("root")
	e := New(domain.KindValidation, "member id missing",
		WithUserMessage("Please enter a member ID."),
		WithCode("form/member-id"),
		WithStatus(400),
		WithContext(map[string]any{"field": "memberId"}),
		WithCause(cause),
	)

	assert.Equal(t, "Please enter a member ID.", e.UserMessage())
	assert.Equal(t, "form/member-id", e.Code())
	assert.Equal(t, 400, e.Status())
	assert.Equal(t, "validation [form/member-id]: member id missing", e.Error())
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, domain.SeverityWarn, e.Severity())
}

func TestError_ContextIsCopied(t *testing.T) {
	src := map[string]any{"nested": map[string]any{"a": 1}}
	e := New(domain.KindUnknown, "x", WithContext(src))

	src["added"] = true
	src["nested"].(map[string]any)["a"] = 2

	got := e.Context()
	assert.NotContains(t, got, "added")
	assert.Equal(t, 1, got["nested"].(map[string]any)["a"])

	got["mutated"] = true
	assert.NotContains(t, e.Context(), "mutated")
}

func TestError_NotificationOmitsDiagnostics(t *testing.T) {
	e := New(domain.KindServerFault, "pq: relation members does not exist",
		WithCode("firestore/internal"),
		WithCause(errors.New("secret stack")),
	)
	n := e.Notification()
	assert.Equal(t, domain.KindServerFault, n.Kind)
	assert.Equal(t, MsgServerFault, n.UserMessage)
	assert.Equal(t, "firestore/internal", n.Code)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, domain.KindNotFound, KindOf(New(domain.KindNotFound, "gone")))
	assert.Equal(t, domain.KindUnknown, KindOf(errors.New("plain")))
	assert.True(t, IsKind(New(domain.KindNetwork, "down"), domain.KindNetwork))
	assert.False(t, IsKind(errors.New("plain"), domain.KindNetwork))
}
