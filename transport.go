package modbus

import "context"

// AbstractIoDevice is the minimal byte-stream contract every concrete
// transport (serial port, TCP socket, UDP socket, TLS socket) implements.
// It is intentionally narrow: framing, retries and reconnection are all
// handled above it, by Decoder/Encoder and reconnectableTransport.
type AbstractIoDevice interface {
	// Open acquires the underlying resource (opens the serial port,
	// dials the socket). Calling Open on an already-open device returns
	// ErrTransportIsAlreadyOpen.
	Open(ctx context.Context) error
	// Close releases the underlying resource. Safe to call more than
	// once; a second call returns ErrTransportIsAlreadyClosed.
	Close() error
	// Write writes buf in full or returns an error; partial writes are
	// not a supported outcome at this layer.
	Write(buf []byte) error
	// Read reads whatever bytes are currently available into buf,
	// blocking until at least one byte arrives, ctx is cancelled, or an
	// error occurs. It returns the number of bytes read.
	Read(ctx context.Context, buf []byte) (int, error)
	// Name identifies the device for logging (e.g. "serial:///dev/ttyUSB0",
	// "tcp://10.0.0.1:502").
	Name() string
}

// transportEvent is the kind of event reported on an AbstractIoDevice's
// event channel by a reconnectableTransport wrapping it.
type transportEvent int

const (
	eventOpened transportEvent = iota
	eventClosed
	eventError
)

// transportNotification pairs a transportEvent with the error that
// triggered it (nil for eventOpened/eventClosed).
type transportNotification struct {
	event transportEvent
	err   error
}
