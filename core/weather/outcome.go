package weather

import "fmt"

// Kind is the closed set of results a fetch can produce.
type Kind int

const (
	Success Kind = iota
	NotFound
	AuthError
	ProviderUnavailable
	Timeout
	NetworkError
	UnknownError
)

var kindNames = [...]string{
	Success:             "success",
	NotFound:            "not_found",
	AuthError:           "auth_error",
	ProviderUnavailable: "provider_unavailable",
	Timeout:             "timeout",
	NetworkError:        "network_error",
	UnknownError:        "unknown_error",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the result of one weather lookup. Snapshot is set only for Success.
type Outcome struct {
	Kind     Kind
	Snapshot *Snapshot
	// Status is the provider's HTTP status when a response arrived.
	Status int
	Detail string
}

// OK reports whether the lookup produced a snapshot.
func (o Outcome) OK() bool { return o.Kind == Success && o.Snapshot != nil }

// Transient reports whether repeating the same lookup later may succeed.
func (o Outcome) Transient() bool {
	switch o.Kind {
	case ProviderUnavailable, Timeout, NetworkError:
		return true
	}
	return false
}

// LogOutcome maps the kind onto the logger's outcome vocabulary.
func (o Outcome) LogOutcome() string {
	switch o.Kind {
	case Success:
		return "ok"
	case NotFound:
		return "not_found"
	case Timeout:
		return "timeout"
	case UnknownError:
		return "invalid"
	default:
		return "unavailable"
	}
}

func (o Outcome) String() string {
	switch {
	case o.Kind == Success:
		return "success"
	case o.Detail != "":
		return o.Kind.String() + ": " + o.Detail
	case o.Status != 0:
		return fmt.Sprintf("%s: http %d", o.Kind, o.Status)
	}
	return o.Kind.String()
}

func failure(kind Kind, status int, detail string) Outcome {
	return Outcome{Kind: kind, Status: status, Detail: detail}
}
