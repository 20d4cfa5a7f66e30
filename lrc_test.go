package modbus

import (
	"testing"
)

func TestLRC(t *testing.T) {
	var l lrc

	l.init()
	if l.sum != 0 {
		t.Errorf("expected sum 0, saw %v", l.sum)
	}

	// LRC of an empty payload is the two's complement of 0, i.e. 0
	if l.value() != 0x00 {
		t.Errorf("expected 0x00, saw 0x%02x", l.value())
	}

	l.add([]byte{0x11, 0x01, 0x00, 0x01})
	// sum: 0x11 + 0x01 + 0x00 + 0x01 = 0x13, two's complement: 0xed
	if l.value() != 0xed {
		t.Errorf("expected 0xed, saw 0x%02x", l.value())
	}

	if !l.isEqual(0xed) {
		t.Error("isEqual() should have returned true")
	}
	if l.isEqual(0xee) {
		t.Error("isEqual() should have returned false")
	}
}

func TestLRCReinit(t *testing.T) {
	var l lrc

	l.add([]byte{0xff, 0xff})
	l.init()
	if l.sum != 0 {
		t.Errorf("expected sum reset to 0, saw %v", l.sum)
	}
	if !l.isEqual(0x00) {
		t.Error("isEqual() should have returned true on a freshly reset lrc")
	}
}
