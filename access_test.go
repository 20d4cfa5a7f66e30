package modbus

import (
	"reflect"
	"testing"
)

func TestSingleBitAccessBasics(t *testing.T) {
	a := NewSingleBitAccess(100, 4)

	if v := a.Bit(99); v != BadValue {
		t.Errorf("expected BadValue below the range, got %v", v)
	}
	if v := a.Bit(104); v != BadValue {
		t.Errorf("expected BadValue above the range, got %v", v)
	}
	if v := a.Bit(100); v != Off {
		t.Errorf("expected Off for an untouched bit, got %v", v)
	}

	a.SetBit(101, On)
	if v := a.Bit(101); v != On {
		t.Errorf("expected On, got %v", v)
	}

	got := a.Bits()
	want := []BitValue{Off, On, Off, Off}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSingleBitAccessReadRequestRoundTrip(t *testing.T) {
	a := NewSingleBitAccess(0x1234, 0x0010)
	payload := a.MarshalReadRequest()

	var b SingleBitAccess
	if !b.UnmarshalReadRequest(payload) {
		t.Fatal("UnmarshalReadRequest should have succeeded")
	}
	if b.StartAddress != 0x1234 || b.Quantity != 0x0010 {
		t.Errorf("unexpected round trip result: %+v", b)
	}

	if b.UnmarshalReadRequest(payload[:3]) {
		t.Error("UnmarshalReadRequest should reject a short payload")
	}
}

func TestSingleBitAccessSingleWriteRoundTrip(t *testing.T) {
	a := NewSingleBitAccess(42, 1)
	a.SetBit(42, On)

	payload := a.MarshalSingleWriteRequest()
	if payload[2] != 0xff || payload[3] != 0x00 {
		t.Errorf("expected {0xff, 0x00} for On, got {0x%02x, 0x%02x}", payload[2], payload[3])
	}

	var b SingleBitAccess
	if !b.UnmarshalSingleWriteRequest(payload) {
		t.Fatal("UnmarshalSingleWriteRequest should have succeeded")
	}
	if b.Bit(42) != On {
		t.Errorf("expected On, got %v", b.Bit(42))
	}

	if b.UnmarshalSingleWriteRequest([]byte{0x00, 0x2a, 0x12, 0x00}) {
		t.Error("UnmarshalSingleWriteRequest should reject a malformed coil value")
	}
}

func TestSingleBitAccessMultipleWriteRoundTrip(t *testing.T) {
	a := NewSingleBitAccess(0, 10)
	for i := uint16(0); i < 10; i++ {
		if i%3 == 0 {
			a.SetBit(i, On)
		}
	}

	payload := a.MarshalMultipleWriteRequest()

	var b SingleBitAccess
	if !b.UnmarshalMultipleWriteRequest(payload) {
		t.Fatal("UnmarshalMultipleWriteRequest should have succeeded")
	}
	if !reflect.DeepEqual(a.Bits(), b.Bits()) {
		t.Errorf("round trip mismatch: %v vs %v", a.Bits(), b.Bits())
	}

	if b.UnmarshalMultipleWriteRequest(payload[:4]) {
		t.Error("UnmarshalMultipleWriteRequest should reject a truncated payload")
	}
}

func TestSixteenBitAccessBasics(t *testing.T) {
	a := NewSixteenBitAccess(10, 3)

	if v := a.Value(10); v != 0 {
		t.Errorf("expected 0 for an untouched register, got %v", v)
	}
	a.SetValue(11, 0xbeef)
	if v := a.Value(11); v != 0xbeef {
		t.Errorf("expected 0xbeef, got 0x%04x", v)
	}

	got := a.Values()
	want := []uint16{0, 0xbeef, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSixteenBitAccessReadResponseRoundTrip(t *testing.T) {
	a := NewSixteenBitAccess(0, 2)
	a.SetValue(0, 0x1111)
	a.SetValue(1, 0x2222)
	payload := a.MarshalReadResponse()

	b := NewSixteenBitAccess(0, 2)
	if !b.UnmarshalReadResponse(payload) {
		t.Fatal("UnmarshalReadResponse should have succeeded")
	}
	if !reflect.DeepEqual(a.Values(), b.Values()) {
		t.Errorf("round trip mismatch: %v vs %v", a.Values(), b.Values())
	}
}

func TestReadWriteMultipleRoundTrip(t *testing.T) {
	read := NewSixteenBitAccess(0, 4)
	write := NewSixteenBitAccess(100, 2)
	write.SetValue(100, 0x0102)
	write.SetValue(101, 0x0304)

	payload := MarshalReadWriteMultipleRequest(read, write)

	gotRead, gotWrite, ok := UnmarshalReadWriteMultipleRequest(payload)
	if !ok {
		t.Fatal("UnmarshalReadWriteMultipleRequest should have succeeded")
	}
	if gotRead.StartAddress != 0 || gotRead.Quantity != 4 {
		t.Errorf("unexpected read region: %+v", gotRead)
	}
	if !reflect.DeepEqual(gotWrite.Values(), write.Values()) {
		t.Errorf("write region mismatch: %v vs %v", gotWrite.Values(), write.Values())
	}

	if _, _, ok := UnmarshalReadWriteMultipleRequest(payload[:8]); ok {
		t.Error("UnmarshalReadWriteMultipleRequest should reject a truncated payload")
	}
}
