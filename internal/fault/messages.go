package fault

import "github.com/vietddude/faultline/internal/core/domain"

// Generic user-facing messages. They never echo backend codes or raw errors.
const (
	MsgNetwork           = "We couldn't reach the server. Check your connection and try again."
	MsgAuthentication    = "Your session has expired. Please sign in again."
	MsgInvalidCredential = "Incorrect email or password."
	MsgAuthorization     = "You don't have permission to do that."
	MsgValidation        = "Some of the information provided is invalid. Please review and try again."
	MsgAlreadyExists     = "That record already exists."
	MsgNotFound          = "The requested item could not be found."
	MsgServerFault       = "Something went wrong on our side. Please try again later."
	MsgBackendFault      = "The service is temporarily unable to complete your request. Please try again shortly."
	MsgRateLimited       = "Too many attempts. Please wait a moment and try again."
	MsgUnknown           = "An unexpected error occurred. Please try again."
)

var kindMessages = map[domain.Kind]string{
	domain.KindNetwork:        MsgNetwork,
	domain.KindAuthentication: MsgAuthentication,
	domain.KindAuthorization:  MsgAuthorization,
	domain.KindValidation:     MsgValidation,
	domain.KindNotFound:       MsgNotFound,
	domain.KindServerFault:    MsgServerFault,
	domain.KindBackendFault:   MsgBackendFault,
	domain.KindUnknown:        MsgUnknown,
}

// UserMessageFor returns the default user message for a kind.
func UserMessageFor(k domain.Kind) string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return MsgUnknown
}
