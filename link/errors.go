package link

import "github.com/pkg/errors"

// Status is the result of an upward API call (Open, Send, Close).
type Status int

const (
	StatusSuccess Status = iota
	StatusTimeout
	StatusInvalidState
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusInvalidState:
		return "invalid state"
	case StatusInternalError:
		return "internal error"
	default:
		return "unknown"
	}
}

var (
	// ErrTimeout is returned when a wait deadline elapses without its
	// predicate becoming true: Send exhausting its retransmissions,
	// Open not reaching ACTIVE in time, or WaitForState's deadline.
	ErrTimeout = errors.New("link: timeout")

	// ErrInvalidState is returned by Send when the link is not ACTIVE,
	// including after FAILED or Close.
	ErrInvalidState = errors.New("link: invalid state")

	// ErrAlreadyOpen is returned by Open when the link is already open.
	ErrAlreadyOpen = errors.New("link: already open")

	// ErrTransportFailed wraps a lower-transport Open failure.
	ErrTransportFailed = errors.New("link: lower transport failed to open")
)
