package domain

import "fmt"

// Kind is the closed set of fault categories every error is normalized into.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuthentication
	KindAuthorization
	KindValidation
	KindNotFound
	KindServerFault
	KindBackendFault
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{
	KindUnknown,
	KindNetwork,
	KindAuthentication,
	KindAuthorization,
	KindValidation,
	KindNotFound,
	KindServerFault,
	KindBackendFault,
}

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindServerFault:
		return "server_fault"
	case KindBackendFault:
		return "backend_fault"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name so JSON payloads stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a kind name as produced by String.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown fault kind %q", name)
}

// Severity is the log level a fault is reported at.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for _, v := range []Severity{SeverityInfo, SeverityWarn, SeverityError, SeverityCritical} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}

// SeverityFor maps a fault kind to the severity it is logged at.
func SeverityFor(k Kind) Severity {
	switch k {
	case KindValidation, KindNotFound:
		return SeverityWarn
	case KindAuthentication, KindAuthorization:
		return SeverityError
	case KindServerFault, KindBackendFault:
		return SeverityCritical
	default:
		return SeverityError
	}
}
