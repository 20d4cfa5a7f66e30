package modbus

import (
	"testing"
)

func TestParseEndpointURLTCP(t *testing.T) {
	e, err := parseEndpointURL("modbus.tcp://192.168.1.10:502")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.kind != endpointTCP {
		t.Errorf("expected endpointTCP, got %v", e.kind)
	}
	if e.addr != "192.168.1.10:502" {
		t.Errorf("unexpected addr: %v", e.addr)
	}
}

func TestParseEndpointURLTCPDefaultPort(t *testing.T) {
	e, err := parseEndpointURL("modbus.tcp://192.168.1.10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.addr != "192.168.1.10:502" {
		t.Errorf("expected default port 502 appended, got %v", e.addr)
	}
}

func TestParseEndpointURLTLSDefaultPort(t *testing.T) {
	e, err := parseEndpointURL("modbus.tls://192.168.1.10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.kind != endpointTLS || e.addr != "192.168.1.10:802" {
		t.Errorf("unexpected result: %+v", e)
	}
}

func TestParseEndpointURLUDP(t *testing.T) {
	e, err := parseEndpointURL("modbus+udp://10.0.0.1:1502")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.kind != endpointUDP || e.addr != "10.0.0.1:1502" {
		t.Errorf("unexpected result: %+v", e)
	}
}

func TestParseEndpointURLSerial(t *testing.T) {
	e, err := parseEndpointURL("modbus.file:///dev/ttyUSB0?baud=19200&databits=7&stopbits=2&parity=E")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.kind != endpointSerial {
		t.Fatalf("expected endpointSerial, got %v", e.kind)
	}
	if e.serial.Device != "/dev/ttyUSB0" {
		t.Errorf("unexpected device: %v", e.serial.Device)
	}
	if e.serial.BaudRate != 19200 || e.serial.DataBits != 7 || e.serial.StopBits != 2 {
		t.Errorf("unexpected serial params: %+v", e.serial)
	}
	if e.serial.Parity != ParityEven {
		t.Errorf("expected ParityEven, got %v", e.serial.Parity)
	}
}

func TestParseEndpointURLSerialDefaults(t *testing.T) {
	e, err := parseEndpointURL("modbus.serial:///dev/ttyS0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.serial.BaudRate != 9600 || e.serial.DataBits != 8 || e.serial.StopBits != 1 || e.serial.Parity != ParityNone {
		t.Errorf("unexpected serial defaults: %+v", e.serial)
	}
}

func TestParseEndpointURLUnsupportedScheme(t *testing.T) {
	if _, err := parseEndpointURL("http://example.com"); err == nil {
		t.Error("expected an error for an unsupported scheme")
	}
}

func TestParseEndpointURLBadBaud(t *testing.T) {
	if _, err := parseEndpointURL("modbus.file:///dev/ttyUSB0?baud=notanumber"); err == nil {
		t.Error("expected an error for a malformed baud rate")
	}
}

func TestParseEndpointURLBadParity(t *testing.T) {
	if _, err := parseEndpointURL("modbus.file:///dev/ttyUSB0?parity=X"); err == nil {
		t.Error("expected an error for an invalid parity letter")
	}
}

func TestParseEndpointURLMissingDevice(t *testing.T) {
	if _, err := parseEndpointURL("modbus.file://"); err == nil {
		t.Error("expected an error when no device path is given")
	}
}
