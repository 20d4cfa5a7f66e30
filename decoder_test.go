package modbus

import (
	"bytes"
	"testing"
)

func TestDecodeRTUClientFrame(t *testing.T) {
	adu := &Adu{ServerAddress: 0x11, FunctionCode: FcReadCoils, Payload: []byte{0x02, 0xcd, 0x6b}}
	wire, err := Encode(TransferModeRTU, adu, 0)
	if err != nil {
		t.Fatalf("unexpected error encoding fixture: %v", err)
	}

	d := NewClientDecoder(TransferModeRTU)
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %v", len(frames))
	}
	if frames[0].Err != NoError {
		t.Errorf("expected NoError, got %v", frames[0].Err)
	}
	if !bytes.Equal(frames[0].Adu.Payload, adu.Payload) {
		t.Errorf("payload mismatch: %v vs %v", frames[0].Adu.Payload, adu.Payload)
	}
}

func TestDecodeRTUSplitAcrossFeeds(t *testing.T) {
	adu := &Adu{ServerAddress: 0x01, FunctionCode: FcReadHoldingRegisters, Payload: []byte{0x04, 0x00, 0x01, 0x00, 0x02}}
	wire, _ := Encode(TransferModeRTU, adu, 0)

	d := NewClientDecoder(TransferModeRTU)
	if frames := d.Feed(wire[:3]); len(frames) != 0 {
		t.Fatalf("expected no frames from a partial feed, got %v", len(frames))
	}
	frames := d.Feed(wire[3:])
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame once the rest arrives, got %v", len(frames))
	}
}

func TestDecodeRTUBadCRC(t *testing.T) {
	adu := &Adu{ServerAddress: 0x11, FunctionCode: FcReadCoils, Payload: []byte{0x02, 0xcd, 0x6b}}
	wire, _ := Encode(TransferModeRTU, adu, 0)
	wire[len(wire)-1] ^= 0xff

	d := NewClientDecoder(TransferModeRTU)
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame even with a bad CRC, got %v", len(frames))
	}
	if frames[0].Err != StorageParityError {
		t.Errorf("expected StorageParityError, got %v", frames[0].Err)
	}
}

func TestDecodeRTUUnknownFunction(t *testing.T) {
	raw := []byte{0x11, 0x55, 0x00, 0x01}
	var c crc
	c.init()
	c.add(raw)
	raw = append(raw, c.value()...)

	d := NewClientDecoder(TransferModeRTU)
	frames := d.Feed(raw)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %v", len(frames))
	}
	ex, ok := frames[0].Err.Exception()
	if !ok || ex != ExIllegalFunction {
		t.Errorf("expected ExIllegalFunction, got %v", frames[0].Err)
	}
}

func TestDecodeMBAPFrame(t *testing.T) {
	adu := &Adu{ServerAddress: 0x01, FunctionCode: FcReadHoldingRegisters, Payload: []byte{0x00, 0x00, 0x00, 0x02}}
	wire, _ := Encode(TransferModeMBAP, adu, 0x4242)

	d := NewServerDecoder(TransferModeMBAP)
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %v", len(frames))
	}
	if frames[0].Adu.TransactionID != 0x4242 {
		t.Errorf("expected transaction id 0x4242, got 0x%04x", frames[0].Adu.TransactionID)
	}
}

func TestDecodeMBAPTwoFramesInOneFeed(t *testing.T) {
	a1, _ := Encode(TransferModeMBAP, &Adu{ServerAddress: 1, FunctionCode: FcReadCoils, Payload: []byte{0, 0, 0, 1}}, 1)
	a2, _ := Encode(TransferModeMBAP, &Adu{ServerAddress: 2, FunctionCode: FcReadCoils, Payload: []byte{0, 0, 0, 1}}, 2)

	d := NewServerDecoder(TransferModeMBAP)
	frames := d.Feed(append(append([]byte{}, a1...), a2...))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %v", len(frames))
	}
	if frames[0].Adu.TransactionID != 1 || frames[1].Adu.TransactionID != 2 {
		t.Errorf("frames decoded out of order: %+v", frames)
	}
}

func TestDecodeASCIIFrame(t *testing.T) {
	adu := &Adu{ServerAddress: 0x11, FunctionCode: FcReadCoils, Payload: []byte{0x00, 0x13, 0x00, 0x25}}
	wire, _ := Encode(TransferModeASCII, adu, 0)

	d := NewClientDecoder(TransferModeASCII)
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %v", len(frames))
	}
	if frames[0].Err != NoError {
		t.Errorf("expected NoError, got %v", frames[0].Err)
	}
}

func TestDecodeASCIIBadLRC(t *testing.T) {
	adu := &Adu{ServerAddress: 0x11, FunctionCode: FcReadCoils, Payload: []byte{0x00, 0x13, 0x00, 0x25}}
	wire, _ := Encode(TransferModeASCII, adu, 0)
	// flip the last hex digit before the CRLF, corrupting the LRC byte
	wire[len(wire)-3] = 'F'

	d := NewClientDecoder(TransferModeASCII)
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %v", len(frames))
	}
	if frames[0].Err != StorageParityError {
		t.Errorf("expected StorageParityError, got %v", frames[0].Err)
	}
}

func TestDecoderResetDropsPartialFrame(t *testing.T) {
	d := NewClientDecoder(TransferModeRTU)
	d.Feed([]byte{0x11, 0x01})
	d.Reset()
	if len(d.buf) != 0 {
		t.Errorf("expected Reset to clear the buffer, still holding %v bytes", len(d.buf))
	}
}
