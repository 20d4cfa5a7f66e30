package modbus

import (
	"testing"
	"time"
)

func TestNewClientAppliesDefaults(t *testing.T) {
	c, err := NewClient(&Configuration{URL: "modbus.tcp://127.0.0.1:502"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.conf.Timeout != time.Second {
		t.Errorf("expected default timeout of 1s, got %v", c.conf.Timeout)
	}
	if c.conf.Retries != 3 {
		t.Errorf("expected default 3 retries, got %v", c.conf.Retries)
	}
	if c.conf.OpenRetryTimes != 3 {
		t.Errorf("expected default 3 open retries, got %v", c.conf.OpenRetryTimes)
	}
	if c.unitID != 1 {
		t.Errorf("expected default unit id 1, got %v", c.unitID)
	}
	if c.transferMode() != TransferModeMBAP {
		t.Errorf("expected MBAP transfer mode for a tcp:// url, got %v", c.transferMode())
	}
}

func TestNewClientAppliesOptions(t *testing.T) {
	c, err := NewClient(&Configuration{URL: "modbus.tcp://127.0.0.1:502"},
		WithUnitID(7),
		WithEndianness(LittleEndian),
		WithWordOrder(LowWordFirst),
		WithRetries(5),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.unitID != 7 || c.endianness != LittleEndian || c.wordOrder != LowWordFirst || c.conf.Retries != 5 {
		t.Errorf("options were not applied: %+v", c)
	}
}

func TestNewClientSerialURLAppliesConfOverrides(t *testing.T) {
	c, err := NewClient(&Configuration{URL: "modbus.file:///dev/ttyUSB0", Speed: 19200, DataBits: 7, StopBits: 2, Parity: ParityEven})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.endpoint.serial.BaudRate != 19200 || c.endpoint.serial.DataBits != 7 || c.endpoint.serial.StopBits != 2 {
		t.Errorf("Configuration serial overrides were not applied: %+v", c.endpoint.serial)
	}
	if c.endpoint.serial.Parity != ParityEven {
		t.Errorf("expected ParityEven, got %v", c.endpoint.serial.Parity)
	}
	if c.transferMode() != TransferModeRTU {
		t.Errorf("expected RTU transfer mode for a serial url, got %v", c.transferMode())
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(&Configuration{URL: "not-a-url://"}); err == nil {
		t.Error("expected an error for an unsupported scheme")
	}
}

func TestClientCallsBeforeOpenFail(t *testing.T) {
	c, err := NewClient(&Configuration{URL: "modbus.tcp://127.0.0.1:502"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.ReadCoils(0, 1); err != ErrTransportClosed {
		t.Errorf("expected ErrTransportClosed before Open, got %v", err)
	}
}

func TestClientDiagnosisNilBeforeOpen(t *testing.T) {
	c, err := NewClient(&Configuration{URL: "modbus.tcp://127.0.0.1:502"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Diagnosis() != nil {
		t.Error("expected a nil Diagnosis before Open")
	}
}

func TestClientCloseBeforeOpenFails(t *testing.T) {
	c, err := NewClient(&Configuration{URL: "modbus.tcp://127.0.0.1:502"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Close(); err != ErrTransportIsAlreadyClosed {
		t.Errorf("expected ErrTransportIsAlreadyClosed, got %v", err)
	}
}
