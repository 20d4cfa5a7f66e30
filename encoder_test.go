package modbus

import (
	"bytes"
	"testing"
)

func TestEncodeRTU(t *testing.T) {
	adu := &Adu{ServerAddress: 0x11, FunctionCode: FcReadCoils, Payload: []byte{0x00, 0x13, 0x00, 0x25}}

	out, err := Encode(TransferModeRTU, adu, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// server address, function code, payload, then 2 CRC bytes
	if len(out) != 8 {
		t.Fatalf("expected 8 bytes, got %v", len(out))
	}
	if out[0] != 0x11 || out[1] != 0x01 {
		t.Errorf("unexpected header: %v", out[:2])
	}
	if !bytes.Equal(out[2:6], adu.Payload) {
		t.Errorf("unexpected payload: %v", out[2:6])
	}

	var c crc
	c.init()
	c.add(out[:6])
	if !c.isEqual(out[6], out[7]) {
		t.Error("trailing CRC does not match the computed one")
	}
}

func TestEncodeMBAP(t *testing.T) {
	adu := &Adu{ServerAddress: 0x01, FunctionCode: FcReadHoldingRegisters, Payload: []byte{0x00, 0x00, 0x00, 0x02}}

	out, err := Encode(TransferModeMBAP, adu, 0x9219)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out) != 12 {
		t.Fatalf("expected 12 bytes, got %v", len(out))
	}
	if out[0] != 0x92 || out[1] != 0x19 {
		t.Errorf("unexpected transaction id bytes: %v", out[0:2])
	}
	if out[2] != 0x00 || out[3] != 0x00 {
		t.Errorf("expected protocol identifier 0x0000, got %v", out[2:4])
	}
	if out[4] != 0x00 || out[5] != 0x06 {
		t.Errorf("expected length 6, got %v", out[4:6])
	}
	if out[6] != 0x01 || out[7] != 0x03 {
		t.Errorf("unexpected unit id/function code: %v", out[6:8])
	}
}

func TestEncodeASCII(t *testing.T) {
	adu := &Adu{ServerAddress: 0x11, FunctionCode: FcReadCoils, Payload: []byte{0x00, 0x13, 0x00, 0x25}}

	out, err := Encode(TransferModeASCII, adu, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != ':' {
		t.Errorf("expected a leading ':', got %q", out[0])
	}
	if out[len(out)-2] != '\r' || out[len(out)-1] != '\n' {
		t.Errorf("expected a trailing CRLF, got %q", out[len(out)-2:])
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	adu := &Adu{ServerAddress: 0x01, FunctionCode: FcWriteMultipleRegisters, Payload: make([]byte, maxPDUPayload+1)}

	if _, err := Encode(TransferModeRTU, adu, 0); err != ErrPayloadTooLarge {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncodeUnknownMode(t *testing.T) {
	adu := &Adu{ServerAddress: 0x01, FunctionCode: FcReadCoils}
	if _, err := Encode(TransferMode(99), adu, 0); err != ErrConfigurationError {
		t.Errorf("expected ErrConfigurationError, got %v", err)
	}
}
