// Package transport defines the contract a byte-level carrier must
// satisfy to sit underneath the H5 link: something that moves bytes in
// both directions and tells the caller about errors, data, and log
// events through callbacks, the way h5_transport.cpp's Transport base
// class does for its concrete UART/USB backends.
package transport

// ErrorCode classifies the notifications an ErrorFunc delivers. Not
// every code is fatal: ErrCodeResetPerformed is informational, carried
// over the same callback as the original's single-callback design
// rather than a second notification channel.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeIOResourcesUnavailable
	ErrCodeResetPerformed
	ErrCodeSyncFailed
	ErrCodeTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeIOResourcesUnavailable:
		return "IO_RESOURCES_UNAVAILABLE"
	case ErrCodeResetPerformed:
		return "RESET_PERFORMED"
	case ErrCodeSyncFailed:
		return "SYNC_FAILED"
	case ErrCodeTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// LogLevel mirrors the severities h5_transport.cpp's log() overloads
// use, trimmed to what the link actually emits.
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "trace"
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorFunc delivers a non-fatal or fatal condition raised by the
// transport or the link above it.
type ErrorFunc func(code ErrorCode, message string)

// DataFunc delivers raw bytes as they arrive off the wire. The
// transport makes no framing guarantees: a call may deliver a partial
// frame, multiple frames, or split a frame across calls.
type DataFunc func(data []byte)

// LogFunc receives a human-readable trace line at the given severity.
type LogFunc func(level LogLevel, message string)

// ByteTransport is the lower transport contract the link state machine
// depends on. Open must not block past establishing the underlying
// connection; delivery of data and errors happens on an
// implementation-owned goroutine until Close returns.
type ByteTransport interface {
	Open(onError ErrorFunc, onData DataFunc, onLog LogFunc) error
	Send(data []byte) error
	Close() error
}
