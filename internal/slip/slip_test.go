package slip

import (
	"bytes"
	"testing"
)

func TestEncode_EmptyData(t *testing.T) {
	result := Encode(nil)
	expected := []byte{End, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(nil) = %v, want %v", result, expected)
	}

	result = Encode([]byte{})
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode([]) = %v, want %v", result, expected)
	}
}

func TestEncode_NoSpecialBytes(t *testing.T) {
	input := []byte{0x01, 0x02, 0x03, 0x04}
	result := Encode(input)
	expected := []byte{End, 0x01, 0x02, 0x03, 0x04, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}

func TestEncode_EscapeEndByte(t *testing.T) {
	input := []byte{0x01, End, 0x03}
	result := Encode(input)
	expected := []byte{End, 0x01, Esc, EscEnd, 0x03, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}

func TestEncode_EscapeEscByte(t *testing.T) {
	input := []byte{0x01, Esc, 0x03}
	result := Encode(input)
	expected := []byte{End, 0x01, Esc, EscEsc, 0x03, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}

func TestEncode_MultipleSpecialBytes(t *testing.T) {
	input := []byte{End, Esc, End, Esc}
	result := Encode(input)
	expected := []byte{End, Esc, EscEnd, Esc, EscEsc, Esc, EscEnd, Esc, EscEsc, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}

func TestEncode_AllSpecialBytes(t *testing.T) {
	input := []byte{End, End, Esc, Esc}
	result := Encode(input)
	expected := []byte{End, Esc, EscEnd, Esc, EscEnd, Esc, EscEsc, Esc, EscEsc, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}

func TestDecode_ValidFrame(t *testing.T) {
	frame := []byte{End, 0x01, 0x02, 0x03, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error = %v, want nil", frame, err)
	}
	expected := []byte{0x01, 0x02, 0x03}
	if !bytes.Equal(result, expected) {
		t.Errorf("Decode(%v) = %v, want %v", frame, result, expected)
	}
}

func TestDecode_UnescapeEndByte(t *testing.T) {
	frame := []byte{End, 0x01, Esc, EscEnd, 0x03, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error = %v, want nil", frame, err)
	}
	expected := []byte{0x01, End, 0x03}
	if !bytes.Equal(result, expected) {
		t.Errorf("Decode(%v) = %v, want %v", frame, result, expected)
	}
}

func TestDecode_UnescapeEscByte(t *testing.T) {
	frame := []byte{End, 0x01, Esc, EscEsc, 0x03, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error = %v, want nil", frame, err)
	}
	expected := []byte{0x01, Esc, 0x03}
	if !bytes.Equal(result, expected) {
		t.Errorf("Decode(%v) = %v, want %v", frame, result, expected)
	}
}

func TestDecode_EmptyFrame(t *testing.T) {
	frame := []byte{End, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error = %v, want nil", frame, err)
	}
	if len(result) != 0 {
		t.Errorf("Decode(%v) = %v, want empty", frame, result)
	}
}

func TestDecode_TooShort(t *testing.T) {
	if _, err := Decode([]byte{End}); err != ErrMissingDelimiter {
		t.Errorf("Decode([0xC0]) error = %v, want ErrMissingDelimiter", err)
	}

	if _, err := Decode(nil); err != ErrMissingDelimiter {
		t.Errorf("Decode(nil) error = %v, want ErrMissingDelimiter", err)
	}
}

func TestDecode_MissingDelimiter(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02, End}); err != ErrMissingDelimiter {
		t.Errorf("Decode(no leading END) error = %v, want ErrMissingDelimiter", err)
	}
	if _, err := Decode([]byte{End, 0x01, 0x02}); err != ErrMissingDelimiter {
		t.Errorf("Decode(no trailing END) error = %v, want ErrMissingDelimiter", err)
	}
}

func TestDecode_DanglingEscape(t *testing.T) {
	frame := []byte{End, 0x01, Esc, End}
	if _, err := Decode(frame); err != ErrInvalidEscape {
		t.Errorf("Decode(%v) error = %v, want ErrInvalidEscape", frame, err)
	}
}

func TestDecode_UnknownEscapeSequence(t *testing.T) {
	frame := []byte{End, 0x01, Esc, 0xFF, 0x03, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error = %v, want nil", frame, err)
	}
	expected := []byte{0x01, 0xFF, 0x03}
	if !bytes.Equal(result, expected) {
		t.Errorf("Decode(%v) = %v, want %v", frame, result, expected)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03},
		{End},
		{Esc},
		{End, Esc},
		{0x00, End, 0x00, Esc, 0x00},
		{0xFF, 0xFE, 0xFD},
		make([]byte, 256),
	}

	for i, tc := range testCases {
		encoded := Encode(tc)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Case %d: Decode error = %v", i, err)
		}
		if !bytes.Equal(decoded, tc) && !(len(decoded) == 0 && len(tc) == 0) {
			t.Errorf("Case %d: RoundTrip(%v) = %v, want %v", i, tc, decoded, tc)
		}
	}
}

func TestReassembler_SingleFrameOneShot(t *testing.T) {
	r := NewReassembler()
	var got [][]byte
	r.Feed([]byte{End, 0x01, 0x02, 0x03, End}, func(frame []byte) {
		got = append(got, frame)
	})
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	decoded, err := Decode(got[0])
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if !bytes.Equal(decoded, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("decoded = %v, want [1 2 3]", decoded)
	}
}

func TestReassembler_SplitAcrossChunks(t *testing.T) {
	r := NewReassembler()
	var got [][]byte
	emit := func(frame []byte) { got = append(got, frame) }

	r.Feed([]byte{End, 0x01, 0x02}, emit)
	if len(got) != 0 {
		t.Fatalf("emitted before frame complete: %v", got)
	}
	r.Feed([]byte{0x03, End}, emit)
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	decoded, err := Decode(got[0])
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if !bytes.Equal(decoded, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("decoded = %v, want [1 2 3]", decoded)
	}
}

func TestReassembler_MultipleFramesOneChunk(t *testing.T) {
	r := NewReassembler()
	var got [][]byte
	emit := func(frame []byte) { got = append(got, frame) }

	r.Feed([]byte{End, 0x01, End, End, 0x02, End}, emit)
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
}

func TestReassembler_DoubleDelimiterResync(t *testing.T) {
	// A leading END flushing a stale partial frame, followed by a real
	// frame, must not be mistaken for an empty application packet.
	r := NewReassembler()
	var got [][]byte
	emit := func(frame []byte) { got = append(got, frame) }

	r.Feed([]byte{End, End, 0x01, 0x02, End}, emit)
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	decoded, err := Decode(got[0])
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if !bytes.Equal(decoded, []byte{0x01, 0x02}) {
		t.Errorf("decoded = %v, want [1 2]", decoded)
	}
}

func TestReassembler_Reset(t *testing.T) {
	r := NewReassembler()
	r.Feed([]byte{End, 0x01, 0x02}, func([]byte) {})
	r.Reset()

	var got [][]byte
	r.Feed([]byte{End, 0x03, End}, func(frame []byte) { got = append(got, frame) })
	if len(got) != 1 {
		t.Fatalf("got %d frames after reset, want 1", len(got))
	}
	decoded, err := Decode(got[0])
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if !bytes.Equal(decoded, []byte{0x03}) {
		t.Errorf("decoded = %v, want [3]", decoded)
	}
}
