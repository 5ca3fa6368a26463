package link

import (
	"github.com/Jinwook-Song/h5link/internal/h5"
	"github.com/Jinwook-Song/h5link/internal/slip"
	"github.com/Jinwook-Song/h5link/internal/transport"
)

// onTransportData is the DataFunc handed to the lower transport: it
// feeds newly-arrived bytes through the Reassembler and processes each
// complete frame as it's located. This runs on the transport's own
// delivery goroutine, never on the state worker.
func (l *Link) onTransportData(data []byte) {
	l.reasm.Feed(data, l.onFrame)
}

func (l *Link) onFrame(frame []byte) {
	decoded, err := slip.Decode(frame)
	if err != nil {
		l.recordError()
		l.logf(transport.LogLevelWarn, "slip decode error: %v", err)
		return
	}

	pkt, err := h5.Decode(decoded)
	if err != nil {
		l.recordError()
		l.logf(transport.LogLevelWarn, "h5 decode error: %v", err)
		return
	}

	l.recordIncoming()
	if pkt.Type == h5.PacketTypeLinkControl {
		l.logf(transport.LogLevelTrace, "recv %s seq=%d ack=%d reliable=%v %s", pkt.Type, pkt.Seq, pkt.Ack, pkt.Reliable, h5.DescribeLinkControl(pkt.Payload))
	} else {
		l.logf(transport.LogLevelTrace, "recv %s seq=%d ack=%d reliable=%v", pkt.Type, pkt.Seq, pkt.Ack, pkt.Reliable)
	}
	l.processPacket(pkt)
}

// onTransportError is the ErrorFunc handed to the lower transport. A
// fatal transport loss sets ioResourceError on the current state's
// exit criteria (prioritized over every other exit condition, per the
// fixed RESET ordering) and is also forwarded to the application.
func (l *Link) onTransportError(code transport.ErrorCode, message string) {
	if code == transport.ErrCodeIOResourcesUnavailable {
		l.syncMu.Lock()
		if l.exit != nil {
			l.exit.setIOResourceError()
		}
		l.syncCond.Broadcast()
		l.syncMu.Unlock()
	}

	if l.appError != nil {
		l.appError(code, message)
	}
}

func (l *Link) notifyResetPerformed() {
	if l.appError != nil {
		l.appError(transport.ErrCodeResetPerformed, "target reset performed")
	}
}

// processPacket dispatches a decoded H5 packet according to the
// current state, per the rules in the link-establishment handshake:
// link-control packets are handled per-state, ACK/VENDOR_SPECIFIC only
// while ACTIVE.
func (l *Link) processPacket(pkt h5.Packet) {
	state := l.State()

	switch pkt.Type {
	case h5.PacketTypeLinkControl:
		l.handleLinkControl(state, pkt)
	case h5.PacketTypeACK:
		if state == StateActive {
			l.handleAck(pkt)
		}
	case h5.PacketTypeVendorSpecific:
		if state == StateActive && pkt.Reliable {
			l.handleReliableData(pkt)
		}
	default:
		// HCI_COMMAND/ACL_DATA/SYNC_DATA/HCI_EVENT/RESET carry no
		// dispatch rule in the handshake; an unexpected peer frame of
		// one of these types is simply not acted on.
	}
}

func (l *Link) handleLinkControl(state State, pkt h5.Packet) {
	l.syncMu.Lock()
	defer func() {
		l.syncCond.Broadcast()
		l.syncMu.Unlock()
	}()

	switch state {
	case StateReset:
		// ignored, but still wakes the sync condition via the deferred
		// broadcast so RESET's wait loop re-checks its own predicate.
	case StateUninitialized:
		e, ok := l.exit.(*uninitializedExit)
		if !ok {
			return
		}
		switch {
		case matchesLinkControl(pkt.Payload, h5.LinkControlSyncResponse):
			e.syncRspReceived = true
		case matchesLinkControl(pkt.Payload, h5.LinkControlSync):
			l.sendLinkControl(h5.LinkControlSyncResponse)
		}
	case StateInitialized:
		e, ok := l.exit.(*initializedExit)
		if !ok {
			return
		}
		switch {
		case matchesLinkControl(pkt.Payload, h5.LinkControlSyncConfigResponse):
			e.syncConfigRspReceived = true
		case matchesLinkControl(pkt.Payload, h5.LinkControlSyncConfig):
			e.syncConfigReceived = true
			l.sendLinkControl(h5.LinkControlSyncConfigResponse)
			e.syncConfigRspSent = true
		case matchesLinkControl(pkt.Payload, h5.LinkControlSync):
			l.sendLinkControl(h5.LinkControlSyncResponse)
		}
	case StateActive:
		e, ok := l.exit.(*activeExit)
		if !ok {
			return
		}
		if matchesLinkControl(pkt.Payload, h5.LinkControlSync) {
			e.syncReceived = true
		}
	}
}

func (l *Link) sendLinkControl(payload []byte) {
	frame := slip.Encode(h5.Encode(payload, 0, 0, false, false, h5.PacketTypeLinkControl))
	l.logf(transport.LogLevelTrace, "send LINK_CONTROL %s", h5.DescribeLinkControl(payload))
	l.transmit(frame)
}

// handleAck processes an ACK_PACKET in ACTIVE: a matching ack_num
// (seq+1 mod 8) completes the in-flight send; an ack_num equal to the
// current seq is a stale retransmission echo and is dropped silently;
// any other value is an irrecoverable sequencing error.
func (l *Link) handleAck(pkt h5.Packet) {
	l.ackMu.Lock()
	expected := (l.seq + 1) % 8
	switch pkt.Ack {
	case expected:
		l.seq = expected
		l.acked = true
		l.ackCond.Broadcast()
		l.ackMu.Unlock()
	case l.seq:
		l.ackMu.Unlock()
	default:
		l.ackMu.Unlock()
		l.markIrrecoverable()
	}
}

// handleReliableData processes a reliable VENDOR_SPECIFIC packet in
// ACTIVE: if its seq matches the expected ack, the ack counter
// advances, an ACK is sent, and the payload is delivered to the
// application; otherwise the link falls back to RESET.
func (l *Link) handleReliableData(pkt h5.Packet) {
	l.syncMu.Lock()
	if pkt.Seq != l.ack {
		l.syncMu.Unlock()
		l.markIrrecoverable()
		return
	}

	l.ack = (l.ack + 1) % 8
	newAck := l.ack
	l.syncMu.Unlock()

	ackFrame := slip.Encode(h5.Encode(nil, 0, newAck, false, false, h5.PacketTypeACK))
	l.transmit(ackFrame)

	if l.appData != nil {
		l.appData(pkt.Payload)
	}
}

func (l *Link) markIrrecoverable() {
	l.syncMu.Lock()
	if e, ok := l.exit.(*activeExit); ok {
		e.irrecoverableSyncError = true
	}
	l.syncCond.Broadcast()
	l.syncMu.Unlock()
}

func matchesLinkControl(payload, want []byte) bool {
	if len(payload) < 2 || len(want) < 2 {
		return false
	}
	return payload[0] == want[0] && payload[1] == want[1]
}
