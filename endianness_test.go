package modbus

import (
	"testing"
)

func TestUint16ToBytes(t *testing.T) {
	out := uint16ToBytes(BigEndian, 0x4321)
	if len(out) != 2 || out[0] != 0x43 || out[1] != 0x21 {
		t.Errorf("expected {0x43, 0x21}, got %v", out)
	}

	out = uint16ToBytes(LittleEndian, 0x4321)
	if len(out) != 2 || out[0] != 0x21 || out[1] != 0x43 {
		t.Errorf("expected {0x21, 0x43}, got %v", out)
	}
}

func TestBytesToUint16(t *testing.T) {
	if v := bytesToUint16(BigEndian, []byte{0x43, 0x21}); v != 0x4321 {
		t.Errorf("expected 0x4321, got 0x%04x", v)
	}
	if v := bytesToUint16(LittleEndian, []byte{0x21, 0x43}); v != 0x4321 {
		t.Errorf("expected 0x4321, got 0x%04x", v)
	}
}

func TestUint16sRoundTrip(t *testing.T) {
	in := []uint16{0x0001, 0x1234, 0xffff}
	out := bytesToUint16s(BigEndian, uint16sToBytes(BigEndian, in))
	if len(out) != len(in) {
		t.Fatalf("expected %v values, got %v", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %v: expected 0x%04x, got 0x%04x", i, in[i], out[i])
		}
	}
}

func TestUint32WordOrder(t *testing.T) {
	in := uint32(0x11223344)

	// big endian, high word first: bytes appear in natural order
	out := uint32ToBytes(BigEndian, HighWordFirst, in)
	if out[0] != 0x11 || out[1] != 0x22 || out[2] != 0x33 || out[3] != 0x44 {
		t.Errorf("expected {11 22 33 44}, got %v", out)
	}

	// big endian, low word first: the two 16-bit words are swapped
	out = uint32ToBytes(BigEndian, LowWordFirst, in)
	if out[0] != 0x33 || out[1] != 0x44 || out[2] != 0x11 || out[3] != 0x22 {
		t.Errorf("expected {33 44 11 22}, got %v", out)
	}

	back := bytesToUint32(BigEndian, LowWordFirst, out)
	if len(back) != 1 || back[0] != in {
		t.Errorf("round trip failed, got %v", back)
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	in := float32(3.14159)
	out := bytesToFloat32(BigEndian, HighWordFirst, float32ToBytes(BigEndian, HighWordFirst, in))
	if len(out) != 1 || out[0] != in {
		t.Errorf("expected %v, got %v", in, out)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	in := uint64(0x1122334455667788)
	out := bytesToUint64(BigEndian, LowWordFirst, uint64ToBytes(BigEndian, LowWordFirst, in))
	if len(out) != 1 || out[0] != in {
		t.Errorf("expected 0x%016x, got %v", in, out)
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	in := float64(2.71828182845904)
	out := bytesToFloat64(LittleEndian, HighWordFirst, float64ToBytes(LittleEndian, HighWordFirst, in))
	if len(out) != 1 || out[0] != in {
		t.Errorf("expected %v, got %v", in, out)
	}
}
