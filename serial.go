package modbus

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// serialPollInterval is the read timeout configured on the underlying
// port, so Read can re-check ctx cancellation between polls instead of
// blocking indefinitely.
const serialPollInterval = 50 * time.Millisecond

// Parity mirrors go.bug.st/serial's parity modes under the names the
// rest of this package's configuration surface uses.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// SerialConfig describes a physical (or pty) serial port to dial.
type SerialConfig struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits int
}

// serialDevice adapts a go.bug.st/serial.Port to AbstractIoDevice.
type serialDevice struct {
	conf *SerialConfig
	port serial.Port
}

func newSerialDevice(conf *SerialConfig) *serialDevice {
	return &serialDevice{conf: conf}
}

func (d *serialDevice) Open(ctx context.Context) error {
	if d.port != nil {
		return ErrTransportIsAlreadyOpen
	}

	mode := &serial.Mode{
		BaudRate: d.conf.BaudRate,
		DataBits: d.conf.DataBits,
	}

	switch d.conf.Parity {
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	switch d.conf.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	port, err := serial.Open(d.conf.Device, mode)
	if err != nil {
		return err
	}
	// a short, fixed read timeout lets Read() be polled cooperatively
	// with ctx cancellation rather than blocking forever.
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		port.Close()
		return err
	}

	d.port = port
	return nil
}

func (d *serialDevice) Close() error {
	if d.port == nil {
		return ErrTransportIsAlreadyClosed
	}
	err := d.port.Close()
	d.port = nil
	return err
}

func (d *serialDevice) Write(buf []byte) error {
	if d.port == nil {
		return ErrTransportClosed
	}
	_, err := d.port.Write(buf)
	return err
}

func (d *serialDevice) Read(ctx context.Context, buf []byte) (int, error) {
	if d.port == nil {
		return 0, ErrTransportClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := d.port.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
		// n == 0, err == nil: the port's read timeout elapsed with no
		// data, give ctx another chance to be cancelled.
	}
}

func (d *serialDevice) Name() string {
	return fmt.Sprintf("serial://%s", d.conf.Device)
}
