// Package link implements the Three-Wire UART ("H5") link-establishment
// state machine and its single-outstanding-packet reliable
// retransmission engine on top of internal/slip and internal/h5.
package link

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Jinwook-Song/h5link/internal/h5"
	"github.com/Jinwook-Song/h5link/internal/linklog"
	"github.com/Jinwook-Song/h5link/internal/slip"
	"github.com/Jinwook-Song/h5link/internal/transport"
)

// Re-exported so callers of this package never need to import
// internal/transport directly.
type (
	ErrorFunc = transport.ErrorFunc
	DataFunc  = transport.DataFunc
	LogFunc   = transport.LogFunc
	ErrorCode = transport.ErrorCode
	LogLevel  = transport.LogLevel
)

const (
	ErrCodeIOResourcesUnavailable = transport.ErrCodeIOResourcesUnavailable
	ErrCodeResetPerformed         = transport.ErrCodeResetPerformed
	ErrCodeSyncFailed             = transport.ErrCodeSyncFailed
	ErrCodeTimeout                = transport.ErrCodeTimeout
)

const (
	LogLevelTrace = transport.LogLevelTrace
	LogLevelDebug = transport.LogLevelDebug
	LogLevelInfo  = transport.LogLevelInfo
	LogLevelWarn  = transport.LogLevelWarn
	LogLevelError = transport.LogLevelError
)

// Stats are the packet counters the original keeps purely for
// diagnostics (incomingPacketCount/outgoingPacketCount/errorPacketCount).
type Stats struct {
	Incoming uint64
	Outgoing uint64
	Errors   uint64
}

// Link drives a Three-Wire UART session over a transport.ByteTransport.
// The zero value is not usable; construct with New.
type Link struct {
	transport transport.ByteTransport
	reasm     *slip.Reassembler

	appError ErrorFunc
	appData  DataFunc
	log      LogFunc

	syncRetransmission    int
	syncTimeout           time.Duration
	openWaitTimeout       time.Duration
	retransmissionTimeout time.Duration

	// sync condition: guards the current state's exit-criteria record
	// and (by convention, single-writer) ack. Woken by the dispatcher
	// and the transport callbacks; re-checked by the state worker
	// after every wake.
	syncMu   sync.Mutex
	syncCond *sync.Cond
	exit     exitCriteria
	ack      uint8

	// ack condition: guards seq and the in-flight send's completion.
	ackMu   sync.Mutex
	ackCond *sync.Cond
	seq     uint8
	acked   bool

	// state condition: guards currentState for WaitForState.
	stateMu      sync.Mutex
	stateCond    *sync.Cond
	currentState State

	opened       atomic.Bool
	runState     atomic.Bool
	workerGID    atomic.Int64
	workerDone   chan struct{}
	lastPacket   []byte
	lastPacketMu sync.Mutex

	stats struct {
		mu sync.Mutex
		s  Stats
	}
}

// New constructs a Link over the given lower transport. The link is
// not opened until Open is called.
func New(t transport.ByteTransport, opts ...Option) *Link {
	l := &Link{
		transport:             t,
		reasm:                 slip.NewReassembler(),
		syncRetransmission:    SyncRetransmission,
		syncTimeout:           SyncTimeout,
		openWaitTimeout:       OpenWaitTimeout,
		retransmissionTimeout: DefaultRetransmissionTimeout,
		currentState:          StateStart,
		log:                   linklog.Default,
	}
	l.syncCond = sync.NewCond(&l.syncMu)
	l.ackCond = sync.NewCond(&l.ackMu)
	l.stateCond = sync.NewCond(&l.stateMu)
	l.workerGID.Store(-1)

	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open starts the state machine and the lower transport, waiting up to
// OpenWaitTimeout for ACTIVE. onError/onData/onLog are the
// application's callbacks; a nil onLog falls back to the package's
// default logrus-backed logger.
func (l *Link) Open(onError ErrorFunc, onData DataFunc, onLog LogFunc) (Status, error) {
	if !l.opened.CompareAndSwap(false, true) {
		return StatusInternalError, ErrAlreadyOpen
	}

	l.appError = onError
	l.appData = onData
	if onLog != nil {
		l.log = onLog
	}

	if err := l.transport.Open(l.onTransportError, l.onTransportData, l.log); err != nil {
		l.opened.Store(false)
		return StatusInternalError, errors.Wrap(ErrTransportFailed, err.Error())
	}

	l.syncMu.Lock()
	l.exit = &startExit{isOpened: true}
	l.syncMu.Unlock()

	l.stateMu.Lock()
	l.currentState = StateStart
	l.stateMu.Unlock()

	l.runState.Store(true)
	l.workerDone = make(chan struct{})
	go l.runStateMachine()

	if l.WaitForState(StateActive, l.openWaitTimeout) {
		return StatusSuccess, nil
	}
	return StatusTimeout, ErrTimeout
}

// WaitForState blocks until the link reaches target or timeout
// elapses, returning whether target was reached.
func (l *Link) WaitForState(target State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return waitUntil(l.stateCond, deadline, func() bool {
		return l.currentState == target
	})
}

// State returns the link's current state.
func (l *Link) State() State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.currentState
}

// Stats returns a snapshot of the packet counters.
func (l *Link) Stats() Stats {
	l.stats.mu.Lock()
	defer l.stats.mu.Unlock()
	return l.stats.s
}

// Send reliably transmits payload, valid only in ACTIVE. It H5-encodes
// the payload as VENDOR_SPECIFIC with the current seq/ack, SLIP-
// encodes it, and retransmits up to SyncRetransmission times waiting
// for the matching ACK, returning StatusTimeout if none arrives.
func (l *Link) Send(payload []byte) (Status, error) {
	if l.State() != StateActive {
		return StatusInvalidState, ErrInvalidState
	}

	l.syncMu.Lock()
	ack := l.ack
	l.syncMu.Unlock()

	l.ackMu.Lock()
	seq := l.seq
	l.ackMu.Unlock()

	frame := slip.Encode(h5.Encode(payload, seq, ack, true, true, h5.PacketTypeVendorSpecific))

	l.lastPacketMu.Lock()
	l.lastPacket = frame
	l.lastPacketMu.Unlock()
	defer func() {
		l.lastPacketMu.Lock()
		l.lastPacket = nil
		l.lastPacketMu.Unlock()
	}()

	for attempt := 0; attempt < l.syncRetransmission; attempt++ {
		l.lastPacketMu.Lock()
		out := l.lastPacket
		l.lastPacketMu.Unlock()

		if err := l.transmit(out); err != nil {
			return StatusInternalError, err
		}

		l.ackMu.Lock()
		l.acked = false
		deadline := time.Now().Add(l.retransmissionTimeout)
		got := waitUntil(l.ackCond, deadline, func() bool { return l.acked })
		l.ackMu.Unlock()

		if got {
			return StatusSuccess, nil
		}
	}

	return StatusTimeout, ErrTimeout
}

// Close stops the state machine and closes the lower transport,
// returning the first non-success result of the two. If Close is
// called from the state worker's own goroutine (e.g. a user error
// callback invoked synchronously from the worker triggers a
// synchronous Close), the worker is signalled but not joined, to avoid
// a self-deadlock; otherwise Close blocks until the worker has exited.
func (l *Link) Close() (Status, error) {
	if !l.opened.Load() {
		return StatusSuccess, nil
	}

	l.syncMu.Lock()
	if l.exit != nil {
		l.exit.setClose()
	}
	l.runState.Store(false)
	l.syncCond.Broadcast()
	l.syncMu.Unlock()

	selfJoin := l.workerGID.Load() == goroutineID()
	if !selfJoin {
		<-l.workerDone
	}

	l.opened.Store(false)
	if err := l.transport.Close(); err != nil {
		return StatusInternalError, err
	}
	return StatusSuccess, nil
}

func (l *Link) transmit(frame []byte) error {
	if err := l.transport.Send(frame); err != nil {
		l.recordError()
		return err
	}
	l.recordOutgoing()
	return nil
}

func (l *Link) recordOutgoing() {
	l.stats.mu.Lock()
	l.stats.s.Outgoing++
	l.stats.mu.Unlock()
}

func (l *Link) recordIncoming() {
	l.stats.mu.Lock()
	l.stats.s.Incoming++
	l.stats.mu.Unlock()
}

func (l *Link) recordError() {
	l.stats.mu.Lock()
	l.stats.s.Errors++
	l.stats.mu.Unlock()
}

func (l *Link) logf(level LogLevel, format string, args ...interface{}) {
	if l.log == nil {
		return
	}
	l.log(level, fmt.Sprintf(format, args...))
}
