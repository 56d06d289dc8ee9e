package fault

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// ConnectivityChecker reports whether the runtime currently has network access.
type ConnectivityChecker interface {
	Online(ctx context.Context) bool
}

// httpStatusCarrier covers HTTP client errors that expose the response status.
type httpStatusCarrier interface {
	HTTPStatus() int
}

type statusCodeCarrier interface {
	StatusCode() int
}

// Normalizer maps raw errors onto *Error. The zero value is ready to use and
// has no connectivity probe.
type Normalizer struct {
	Connectivity ConnectivityChecker
}

var defaultNormalizer Normalizer

// Normalize converts raw into a *Error using the static tables only.
// Context is attached unless raw is already normalized, in which case raw is
// returned unchanged.
func Normalize(raw error, ctx map[string]any) *Error {
	return defaultNormalizer.Normalize(raw, ctx)
}

// offlineProbeTimeout bounds the connectivity check made for errors no
// table or heuristic recognised.
const offlineProbeTimeout = 250 * time.Millisecond

// Normalize converts raw into a *Error. See the package-level Normalize.
func (n Normalizer) Normalize(raw error, ctx map[string]any) *Error {
	return n.NormalizeContext(context.Background(), raw, ctx)
}

// NormalizeContext is Normalize with the caller's context bounding the
// connectivity probe.
func (n Normalizer) NormalizeContext(cctx context.Context, raw error, ctx map[string]any) *Error {
	if raw == nil {
		return nil
	}

	var already *Error
	if errors.As(raw, &already) {
		return already
	}

	if code, msg, extra, ok := backendFault(raw); ok {
		kind, status, userMsg, _ := LookupBackendCode(code)
		return New(kind, msg,
			WithCode(code),
			WithStatus(status),
			WithUserMessage(userMsg),
			WithContext(extra),
			WithContext(ctx),
			WithCause(raw),
		)
	}

	if status := carriedStatus(raw); status > 0 {
		if kind, ok := kindForStatus(status); ok {
			return New(kind, raw.Error(),
				WithStatus(status),
				WithContext(ctx),
				WithCause(raw),
			)
		}
	}

	if looksLikeNetwork(raw) || n.offline(cctx) {
		return New(domain.KindNetwork, raw.Error(),
			WithStatus(0),
			WithContext(ctx),
			WithCause(raw),
		)
	}

	return New(domain.KindUnknown, raw.Error(), WithContext(ctx), WithCause(raw))
}

// offline runs only after the cheap heuristics have failed.
func (n Normalizer) offline(ctx context.Context) bool {
	if n.Connectivity == nil || ctx.Err() != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, offlineProbeTimeout)
	defer cancel()
	return !n.Connectivity.Online(ctx)
}

func carriedStatus(err error) int {
	var hs httpStatusCarrier
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	var sc statusCodeCarrier
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func kindForStatus(status int) (domain.Kind, bool) {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.KindValidation, true
	case status == http.StatusUnauthorized:
		return domain.KindAuthentication, true
	case status == http.StatusForbidden:
		return domain.KindAuthorization, true
	case status == http.StatusNotFound:
		return domain.KindNotFound, true
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return domain.KindBackendFault, true
	case status >= http.StatusInternalServerError:
		return domain.KindServerFault, true
	default:
		return domain.KindUnknown, false
	}
}
