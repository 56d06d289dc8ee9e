package fault

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/faultline/internal/core/domain"
)

// BackendError is a fault raised by a backend SDK, identified by a
// namespaced code such as "auth/wrong-password" or "firestore/unavailable".
type BackendError struct {
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BackendError) BackendCode() string { return e.Code }

// backendCoder is implemented by any error that exposes a namespaced backend code.
type backendCoder interface {
	BackendCode() string
}

// backendNamespaces are the code prefixes routed to the backend table.
var backendNamespaces = map[string]bool{
	"auth":      true,
	"firestore": true,
	"storage":   true,
	"functions": true,
	"grpc":      true,
}

type backendMapping struct {
	kind    domain.Kind
	status  int
	message string
}

// backendFamilies maps the code suffix (after the namespace) to a mapping.
// All invalid-credential codes share one message so callers cannot tell
// which half of the credential pair was wrong.
var backendFamilies = map[string]backendMapping{
	"wrong-password":            {domain.KindAuthentication, 401, MsgInvalidCredential},
	"user-not-found":            {domain.KindAuthentication, 401, MsgInvalidCredential},
	"invalid-credential":        {domain.KindAuthentication, 401, MsgInvalidCredential},
	"invalid-email":             {domain.KindAuthentication, 401, MsgInvalidCredential},
	"invalid-login-credentials": {domain.KindAuthentication, 401, MsgInvalidCredential},

	"requires-recent-login": {domain.KindAuthentication, 401, MsgAuthentication},
	"user-token-expired":    {domain.KindAuthentication, 401, MsgAuthentication},
	"id-token-expired":      {domain.KindAuthentication, 401, MsgAuthentication},
	"unauthenticated":       {domain.KindAuthentication, 401, MsgAuthentication},

	"already-exists":       {domain.KindValidation, 400, MsgAlreadyExists},
	"email-already-in-use": {domain.KindValidation, 400, MsgAlreadyExists},

	"invalid-argument":    {domain.KindValidation, 400, MsgValidation},
	"failed-precondition": {domain.KindValidation, 400, MsgValidation},
	"out-of-range":        {domain.KindValidation, 400, MsgValidation},
	"weak-password":       {domain.KindValidation, 400, MsgValidation},
	"invalid-action-code": {domain.KindValidation, 400, MsgValidation},
	"expired-action-code": {domain.KindValidation, 400, MsgValidation},

	"permission-denied": {domain.KindAuthorization, 403, MsgAuthorization},
	"unauthorized":      {domain.KindAuthorization, 403, MsgAuthorization},
	"user-disabled":     {domain.KindAuthorization, 403, MsgAuthorization},

	"not-found":        {domain.KindNotFound, 404, MsgNotFound},
	"object-not-found": {domain.KindNotFound, 404, MsgNotFound},

	"unavailable":            {domain.KindNetwork, 503, MsgNetwork},
	"network-request-failed": {domain.KindNetwork, 503, MsgNetwork},
	"retry-limit-exceeded":   {domain.KindNetwork, 503, MsgNetwork},
	"deadline-exceeded":      {domain.KindNetwork, 504, MsgNetwork},

	"resource-exhausted": {domain.KindBackendFault, 429, MsgRateLimited},
	"too-many-requests":  {domain.KindBackendFault, 429, MsgRateLimited},
	"quota-exceeded":     {domain.KindBackendFault, 429, MsgRateLimited},

	"aborted":   {domain.KindBackendFault, 409, MsgBackendFault},
	"cancelled": {domain.KindBackendFault, 409, MsgBackendFault},
	"canceled":  {domain.KindBackendFault, 409, MsgBackendFault},

	"unimplemented": {domain.KindBackendFault, 501, MsgBackendFault},

	"internal":  {domain.KindServerFault, 500, MsgServerFault},
	"data-loss": {domain.KindServerFault, 500, MsgServerFault},
	"unknown":   {domain.KindServerFault, 500, MsgServerFault},
}

// backendExact holds overrides for full codes whose meaning differs from
// their family.
var backendExact = map[string]backendMapping{
	"auth/too-many-requests":  {domain.KindBackendFault, 429, MsgRateLimited},
	"storage/unauthorized":    {domain.KindAuthorization, 403, MsgAuthorization},
	"storage/unauthenticated": {domain.KindAuthentication, 401, MsgAuthentication},
}

var defaultBackendMapping = backendMapping{domain.KindBackendFault, 500, MsgBackendFault}

// LookupBackendCode resolves a namespaced backend code. ok is false when the
// code does not belong to a known namespace.
func LookupBackendCode(code string) (kind domain.Kind, httpStatus int, userMessage string, ok bool) {
	ns, family, found := strings.Cut(strings.ToLower(strings.TrimSpace(code)), "/")
	if !found || !backendNamespaces[ns] {
		return domain.KindUnknown, 0, "", false
	}
	m, exact := backendExact[ns+"/"+family]
	if !exact {
		var known bool
		if m, known = backendFamilies[family]; !known {
			m = defaultBackendMapping
		}
	}
	return m.kind, m.status, m.message, true
}

// backendFault extracts a namespaced code from err, if it has one.
func backendFault(err error) (code, message string, extra map[string]any, ok bool) {
	var coder backendCoder
	if errors.As(err, &coder) {
		code = coder.BackendCode()
		if _, _, _, known := LookupBackendCode(code); known {
			return code, err.Error(), nil, true
		}
	}

	st, isStatus := status.FromError(err)
	if !isStatus || st.Code() == codes.OK {
		return "", "", nil, false
	}
	return grpcCode(st), st.Message(), grpcDetails(st), true
}

// grpcCode prefers the ErrorInfo reason when the server attached one.
func grpcCode(st *status.Status) string {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() != "" && info.GetReason() != "" {
			code := namespaceFromDomain(info.GetDomain()) + "/" + kebab(info.GetReason())
			if _, _, _, known := LookupBackendCode(code); known {
				return code
			}
		}
	}
	return "grpc/" + kebab(grpcCodeName(st.Code()))
}

func grpcDetails(st *status.Status) map[string]any {
	out := map[string]any{"grpc_code": st.Code().String()}
	for _, d := range st.Details() {
		switch detail := d.(type) {
		case *errdetails.RetryInfo:
			if delay := detail.GetRetryDelay(); delay != nil {
				out["retryAfterMs"] = delay.AsDuration().Milliseconds()
			}
		case *errdetails.ErrorInfo:
			out["reason"] = detail.GetReason()
			out["domain"] = detail.GetDomain()
		}
	}
	return out
}

// grpcCodeName renders codes.Code the way the status table spells them.
func grpcCodeName(c codes.Code) string {
	switch c {
	case codes.Canceled:
		return "cancelled"
	case codes.DeadlineExceeded:
		return "deadline_exceeded"
	case codes.NotFound:
		return "not_found"
	case codes.AlreadyExists:
		return "already_exists"
	case codes.PermissionDenied:
		return "permission_denied"
	case codes.ResourceExhausted:
		return "resource_exhausted"
	case codes.FailedPrecondition:
		return "failed_precondition"
	case codes.OutOfRange:
		return "out_of_range"
	case codes.InvalidArgument:
		return "invalid_argument"
	case codes.DataLoss:
		return "data_loss"
	default:
		return strings.ToLower(c.String())
	}
}

// namespaceFromDomain turns "firestore.googleapis.com" into "firestore".
func namespaceFromDomain(d string) string {
	ns, _, _ := strings.Cut(strings.ToLower(d), ".")
	return ns
}

func kebab(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}
