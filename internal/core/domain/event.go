package domain

// Notification is the payload broadcast to UI subscribers for every fault.
type Notification struct {
	Kind        Kind           `json:"kind"`
	UserMessage string         `json:"user_message"`
	Code        string         `json:"code,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}
