package link

// exitCriteria is the per-state family of exit predicates: each state
// action blocks on the sync condition until its own fulfilled()
// returns true. Tagged variants (one concrete type per state, only
// carrying the fields that state needs) rather than one generic
// struct shared by every state, so a dispatcher setting e.g.
// syncConfigReceived cannot accidentally be compiled against a state
// that has no such field.
type exitCriteria interface {
	fulfilled() bool
	setClose()
	setIOResourceError()
}

type base struct {
	closeRequested  bool
	ioResourceError bool
}

func (b *base) setClose()           { b.closeRequested = true }
func (b *base) setIOResourceError() { b.ioResourceError = true }

type startExit struct {
	base
	isOpened bool
}

func (e *startExit) fulfilled() bool {
	return e.isOpened || e.ioResourceError
}

type resetExit struct {
	base
	resetSent bool
}

// fulfilled checks ioResourceError before resetSent: a transport
// failure observed while waiting out the reset window must not be
// masked by the reset having already gone out.
func (e *resetExit) fulfilled() bool {
	return e.ioResourceError || e.resetSent || e.closeRequested
}

type uninitializedExit struct {
	base
	syncSent        bool
	syncRspReceived bool
}

func (e *uninitializedExit) fulfilled() bool {
	return (e.syncSent && e.syncRspReceived) || e.closeRequested || e.ioResourceError
}

type initializedExit struct {
	base
	syncConfigSent        bool
	syncConfigRspReceived bool
	syncConfigReceived    bool
	syncConfigRspSent     bool
}

// fulfilled tests all four flags distinctly (the original tests
// syncConfigReceived twice and never checks syncConfigRspSent).
func (e *initializedExit) fulfilled() bool {
	handshakeComplete := e.syncConfigSent && e.syncConfigRspReceived &&
		e.syncConfigReceived && e.syncConfigRspSent
	return handshakeComplete || e.closeRequested || e.ioResourceError
}

type activeExit struct {
	base
	syncReceived           bool
	irrecoverableSyncError bool
}

func (e *activeExit) fulfilled() bool {
	return e.syncReceived || e.irrecoverableSyncError || e.closeRequested || e.ioResourceError
}
