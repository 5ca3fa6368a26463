package link

import (
	"time"

	"github.com/Jinwook-Song/h5link/internal/h5"
	"github.com/Jinwook-Song/h5link/internal/slip"
	"github.com/Jinwook-Song/h5link/internal/transport"
)

// unboundedWait is used by states with no explicit timeout (START,
// ACTIVE): long enough to never fire in practice, short enough that a
// leaked timer isn't a real resource concern.
const unboundedWait = 100 * 365 * 24 * time.Hour

func newExitCriteria(state State) exitCriteria {
	switch state {
	case StateStart:
		return &startExit{}
	case StateReset:
		return &resetExit{}
	case StateUninitialized:
		return &uninitializedExit{}
	case StateInitialized:
		return &initializedExit{}
	case StateActive:
		return &activeExit{}
	default:
		return &startExit{}
	}
}

// runStateMachine is the state worker: the one goroutine that
// evaluates state actions and drives transitions. Dispatch is a direct
// switch in stepState rather than a table of closures, per the
// rationale that a fixed, small state set doesn't need the indirection
// of heap-allocated closures.
func (l *Link) runStateMachine() {
	l.workerGID.Store(goroutineID())
	defer func() {
		l.workerGID.Store(-1)
		close(l.workerDone)
	}()

	for l.runState.Load() {
		state := l.State()
		if state == StateFailed {
			return
		}

		next, closing := l.stepState(state)
		l.transitionTo(next)
		if closing {
			return
		}
	}
}

func (l *Link) stepState(state State) (State, bool) {
	switch state {
	case StateStart:
		return l.stateStart()
	case StateReset:
		return l.stateReset()
	case StateUninitialized:
		return l.stateUninitialized()
	case StateInitialized:
		return l.stateInitialized()
	case StateActive:
		return l.stateActive()
	default:
		return StateFailed, false
	}
}

func (l *Link) transitionTo(next State) {
	l.syncMu.Lock()
	l.exit = newExitCriteria(next)
	l.syncMu.Unlock()

	l.stateMu.Lock()
	prev := l.currentState
	l.currentState = next
	l.stateCond.Broadcast()
	l.stateMu.Unlock()

	if prev != next {
		l.logf(transport.LogLevelInfo, "state transition: %s -> %s", prev, next)
	}
}

// stateStart waits until the lower transport is open (already true by
// the time the worker starts, since Open only launches the worker
// after a successful transport.Open) or a fatal I/O error.
func (l *Link) stateStart() (State, bool) {
	l.syncMu.Lock()
	e := l.exit.(*startExit)
	waitUntil(l.syncCond, time.Now().Add(unboundedWait), e.fulfilled)
	ioErr, closeReq := e.ioResourceError, e.closeRequested
	l.syncMu.Unlock()

	if ioErr {
		return StateFailed, false
	}
	if closeReq {
		return StateStart, true
	}
	return StateReset, false
}

// stateReset transmits RESET to force the peer into a known state,
// then waits out SyncTimeout for any disturbance before proceeding.
func (l *Link) stateReset() (State, bool) {
	frame := slip.Encode(h5.Encode(nil, 0, 0, false, false, h5.PacketTypeReset))
	if err := l.transmit(frame); err != nil {
		l.syncMu.Lock()
		l.exit.setIOResourceError()
		l.syncMu.Unlock()
	} else {
		l.notifyResetPerformed()
	}

	l.syncMu.Lock()
	e := l.exit.(*resetExit)
	// resetSent is set only once the window has elapsed, so during the
	// wait fulfilled() holds only on a transport error or a close.
	waitUntil(l.syncCond, time.Now().Add(l.syncTimeout), e.fulfilled)
	e.resetSent = true
	ioErr, closeReq := e.ioResourceError, e.closeRequested
	l.syncMu.Unlock()

	if ioErr {
		return StateFailed, false
	}
	if closeReq {
		return StateReset, true
	}
	return StateUninitialized, false
}

// stateUninitialized transmits SYNC and waits for SYNC_RESPONSE,
// retrying up to syncRetransmission times.
func (l *Link) stateUninitialized() (State, bool) {
	for attempt := 0; attempt < l.syncRetransmission; attempt++ {
		frame := slip.Encode(h5.Encode(h5.LinkControlSync, 0, 0, false, false, h5.PacketTypeLinkControl))
		l.logf(transport.LogLevelTrace, "send LINK_CONTROL %s", h5.DescribeLinkControl(h5.LinkControlSync))
		if err := l.transmit(frame); err != nil {
			l.syncMu.Lock()
			l.exit.setIOResourceError()
			l.syncMu.Unlock()
		}

		l.syncMu.Lock()
		e := l.exit.(*uninitializedExit)
		e.syncSent = true
		waitUntil(l.syncCond, time.Now().Add(l.syncTimeout), e.fulfilled)
		ioErr, closeReq, success := e.ioResourceError, e.closeRequested, e.syncRspReceived
		l.syncMu.Unlock()

		if ioErr {
			return StateFailed, false
		}
		if closeReq {
			return StateUninitialized, true
		}
		if success {
			return StateInitialized, false
		}
	}
	return StateFailed, false
}

// stateInitialized transmits SYNC_CONFIG and waits for both
// SYNC_CONFIG_RESPONSE from the peer and a SYNC_CONFIG from the peer
// (answered with SYNC_CONFIG_RESPONSE), retrying up to
// syncRetransmission times.
func (l *Link) stateInitialized() (State, bool) {
	for attempt := 0; attempt < l.syncRetransmission; attempt++ {
		frame := slip.Encode(h5.Encode(h5.LinkControlSyncConfig, 0, 0, false, false, h5.PacketTypeLinkControl))
		l.logf(transport.LogLevelTrace, "send LINK_CONTROL %s", h5.DescribeLinkControl(h5.LinkControlSyncConfig))
		if err := l.transmit(frame); err != nil {
			l.syncMu.Lock()
			l.exit.setIOResourceError()
			l.syncMu.Unlock()
		}

		l.syncMu.Lock()
		e := l.exit.(*initializedExit)
		e.syncConfigSent = true
		waitUntil(l.syncCond, time.Now().Add(l.syncTimeout), e.fulfilled)
		ioErr, closeReq := e.ioResourceError, e.closeRequested
		success := e.syncConfigRspReceived && e.syncConfigReceived && e.syncConfigRspSent
		l.syncMu.Unlock()

		if ioErr {
			return StateFailed, false
		}
		if closeReq {
			return StateInitialized, true
		}
		if success {
			return StateActive, false
		}
	}
	return StateFailed, false
}

// stateActive resets seq/ack to 0 and waits for a peer restart, an
// irrecoverable sequence error, a caller close, or a transport error.
func (l *Link) stateActive() (State, bool) {
	l.ackMu.Lock()
	l.seq = 0
	l.ackMu.Unlock()

	l.syncMu.Lock()
	l.ack = 0
	e := l.exit.(*activeExit)
	waitUntil(l.syncCond, time.Now().Add(unboundedWait), e.fulfilled)
	ioErr, closeReq := e.ioResourceError, e.closeRequested
	l.syncMu.Unlock()

	if ioErr {
		return StateFailed, false
	}
	if closeReq {
		// ACTIVE's close returns to START rather than remaining ACTIVE.
		return StateStart, true
	}
	return StateReset, false
}
