// Package h5 implements the Three-Wire UART ("H5") header codec: the
// four-byte header wrapped around each SLIP-framed payload, carrying
// sequence/ack numbers, packet type, length, and a header checksum,
// with an optional trailing payload CRC.
package h5

import (
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
)

// PacketType identifies the kind of payload an H5 frame carries. The
// numeric values match the Three-Wire UART standard so traces stay
// comparable against any other H5 implementation.
type PacketType int

const (
	PacketTypeACK            PacketType = 0
	PacketTypeHCICommand     PacketType = 1
	PacketTypeACLData        PacketType = 2
	PacketTypeSyncData       PacketType = 3
	PacketTypeHCIEvent       PacketType = 4
	PacketTypeReset          PacketType = 5
	PacketTypeVendorSpecific PacketType = 14
	PacketTypeLinkControl    PacketType = 15
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeACK:
		return "ACK"
	case PacketTypeHCICommand:
		return "HCI_COMMAND"
	case PacketTypeACLData:
		return "ACL_DATA"
	case PacketTypeSyncData:
		return "SYNC_DATA"
	case PacketTypeHCIEvent:
		return "HCI_EVENT"
	case PacketTypeReset:
		return "RESERVED_5"
	case PacketTypeVendorSpecific:
		return "VENDOR_SPECIFIC"
	case PacketTypeLinkControl:
		return "LINK_CONTROL"
	default:
		return "UNKNOWN"
	}
}

const (
	headerLength = 4
	crcLength    = 2

	reliableBit  = 1 << 6
	integrityBit = 1 << 7
)

var (
	// ErrTooShort is returned when a frame is too small to hold a
	// header.
	ErrTooShort = errors.New("h5: frame too short")
	// ErrHeaderChecksumMismatch is returned when byte 3 does not match
	// the checksum computed from bytes 0-2.
	ErrHeaderChecksumMismatch = errors.New("h5: header checksum mismatch")
	// ErrLengthMismatch is returned when the header's declared length
	// does not match the bytes actually present.
	ErrLengthMismatch = errors.New("h5: length mismatch")
	// ErrIntegrityMismatch is returned when the trailing payload CRC
	// does not match the payload.
	ErrIntegrityMismatch = errors.New("h5: payload integrity mismatch")
)

// Packet is a decoded H5 frame.
type Packet struct {
	Payload   []byte
	Seq       uint8
	Ack       uint8
	Reliable  bool
	Integrity bool
	Type      PacketType
}

// Encode builds an H5 frame: 4-byte header, payload, and (if integrity
// is set) a trailing 2-byte CRC-16/CCITT over the payload.
func Encode(payload []byte, seq, ack uint8, reliable, integrity bool, pktType PacketType) []byte {
	length := len(payload)

	b0 := (seq & 0x07) | ((ack & 0x07) << 3)
	if reliable {
		b0 |= reliableBit
	}
	if integrity {
		b0 |= integrityBit
	}

	b1 := byte(pktType&0x0F)<<4 | byte(length&0x0F)
	b2 := byte((length >> 4) & 0xFF)
	b3 := headerChecksum(b0, b1, b2)

	total := headerLength + length
	if integrity {
		total += crcLength
	}
	frame := make([]byte, 0, total)
	frame = append(frame, b0, b1, b2, b3)
	frame = append(frame, payload...)

	if integrity {
		crc := computeCRC16(payload)
		frame = append(frame, byte(crc&0xFF), byte(crc>>8))
	}

	return frame
}

// Decode parses an H5 frame produced by Encode.
func Decode(frame []byte) (Packet, error) {
	if len(frame) < headerLength {
		return Packet{}, ErrTooShort
	}

	b0, b1, b2, b3 := frame[0], frame[1], frame[2], frame[3]
	if headerChecksum(b0, b1, b2) != b3 {
		return Packet{}, ErrHeaderChecksumMismatch
	}

	seq := b0 & 0x07
	ack := (b0 >> 3) & 0x07
	reliable := b0&reliableBit != 0
	integrity := b0&integrityBit != 0
	pktType := PacketType((b1 >> 4) & 0x0F)
	length := int(b1&0x0F) | int(b2)<<4

	expected := headerLength + length
	if integrity {
		expected += crcLength
	}
	if len(frame) != expected {
		return Packet{}, ErrLengthMismatch
	}

	payload := frame[headerLength : headerLength+length]

	if integrity {
		trailer := frame[headerLength+length:]
		got := uint16(trailer[0]) | uint16(trailer[1])<<8
		if computeCRC16(payload) != got {
			return Packet{}, ErrIntegrityMismatch
		}
	}

	payloadCopy := make([]byte, length)
	copy(payloadCopy, payload)

	return Packet{
		Payload:   payloadCopy,
		Seq:       seq,
		Ack:       ack,
		Reliable:  reliable,
		Integrity: integrity,
		Type:      pktType,
	}, nil
}

func headerChecksum(b0, b1, b2 byte) byte {
	return 0xFF - byte((int(b0)+int(b1)+int(b2))&0xFF)
}

// crcTable is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no
// reflection), the payload integrity check the Three-Wire UART
// standard uses.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

func computeCRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
