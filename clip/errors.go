package clip

import "fmt"

// Kind classifies why a clip request ended without a link.
type Kind int

const (
	KindInvalidChannel Kind = iota + 1
	KindNotRegistered
	KindStoreUnavailable
	KindOffline
	KindLiveCheckFailed
	KindMisconfigured
	KindStartTimeUnavailable
	KindUpstreamFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidChannel:
		return "invalid_channel"
	case KindNotRegistered:
		return "not_registered"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindOffline:
		return "offline"
	case KindLiveCheckFailed:
		return "live_check_failed"
	case KindMisconfigured:
		return "misconfigured"
	case KindStartTimeUnavailable:
		return "start_time_unavailable"
	case KindUpstreamFailed:
		return "upstream_failed"
	default:
		return "unknown"
	}
}

// Expected reports whether the kind is a normal operating condition rather
// than a fault.
func (k Kind) Expected() bool {
	switch k {
	case KindInvalidChannel, KindNotRegistered, KindOffline, KindStartTimeUnavailable:
		return true
	}
	return false
}

// Error is the terminal outcome of a failed clip request.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "clip: " + e.Kind.String()
	}
	return fmt.Sprintf("clip: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
