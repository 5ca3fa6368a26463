// Package slip implements the byte-stuffing framing used to carry H5
// packets over a serial link: START/END delimiters and escaped special
// bytes so packet boundaries survive on an otherwise transparent byte
// stream.
package slip

import "github.com/pkg/errors"

const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// ErrMissingDelimiter is returned by Decode when a frame does not carry
// a matching pair of END delimiters.
var ErrMissingDelimiter = errors.New("slip: frame missing END delimiter")

// ErrInvalidEscape is returned by Decode when an ESC byte is the last
// byte of the frame, leaving nothing to unescape.
var ErrInvalidEscape = errors.New("slip: ESC byte with no following byte")

// Encode wraps data in SLIP framing.
// Adds END byte at start and end, escapes special bytes.
func Encode(data []byte) []byte {
	result := make([]byte, 0, len(data)+10)
	result = append(result, End)

	for _, b := range data {
		switch b {
		case End:
			result = append(result, Esc, EscEnd)
		case Esc:
			result = append(result, Esc, EscEsc)
		default:
			result = append(result, b)
		}
	}

	result = append(result, End)
	return result
}

// Decode extracts data from a SLIP frame.
// frame must start and end with END; an ESC byte not followed by a
// byte is an error rather than silently dropped, so callers can tell a
// truncated frame from an empty one.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < 2 || frame[0] != End || frame[len(frame)-1] != End {
		return nil, ErrMissingDelimiter
	}

	data := frame[1 : len(frame)-1]
	result := make([]byte, 0, len(data))

	i := 0
	for i < len(data) {
		if data[i] == Esc {
			if i+1 >= len(data) {
				return nil, ErrInvalidEscape
			}
			switch data[i+1] {
			case EscEnd:
				result = append(result, End)
			case EscEsc:
				result = append(result, Esc)
			default:
				result = append(result, data[i+1])
			}
			i += 2
		} else {
			result = append(result, data[i])
			i++
		}
	}

	return result, nil
}

// Reassembler locates SLIP frames across chunked transport reads,
// mirroring the byte-scanning state h5_transport.cpp's dataHandler
// keeps between callbacks: bytes arrive a handful at a time from the
// serial read loop and a frame may span several deliveries.
type Reassembler struct {
	buf     []byte
	c0Found bool
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends newly-read bytes and invokes emit once per complete
// frame found, in order. emit receives the frame including its END
// delimiters; the caller is responsible for calling Decode on it.
//
// A lone END byte with nothing accumulated yet starts a frame. A
// second consecutive END with no payload between them (an empty
// 2-byte frame) is treated as a resync marker rather than a payload,
// matching the original's "packet.size()==2" special case: many
// three-wire peers emit a leading END to flush a partial frame the
// host may have been mid-way through, and that lone byte must not be
// interpreted as an empty application packet.
func (r *Reassembler) Feed(data []byte, emit func(frame []byte)) {
	for _, b := range data {
		if b == End {
			if !r.c0Found {
				// first END of a new frame
				r.c0Found = true
				r.buf = r.buf[:0]
				r.buf = append(r.buf, b)
				continue
			}

			r.buf = append(r.buf, b)
			if len(r.buf) == 2 {
				// empty frame / resync marker: start over, keep this
				// END as the opening delimiter of the next frame.
				r.buf = r.buf[:0]
				r.buf = append(r.buf, b)
				continue
			}

			emit(r.buf)
			r.buf = nil
			r.c0Found = false
			continue
		}

		if r.c0Found {
			r.buf = append(r.buf, b)
		}
		// bytes seen before the first END of a frame are discarded
	}
}

// Reset discards any partially accumulated frame, used after a
// transport error or reconnect.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.c0Found = false
}
