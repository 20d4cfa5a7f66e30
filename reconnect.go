package modbus

import (
	"context"
	"sync"
	"time"

	"github.com/paopaol/gomodbus/internal/logging"
)

// reconnectState is the FSM state of a reconnectableTransport, grounded
// on the original_source reconnectable iodevice: Closed/Opening/Opened/
// Closing/Error rather than a bare boolean "is open".
type reconnectState int

const (
	stateClosed reconnectState = iota
	stateOpening
	stateOpened
	stateClosing
	stateError
)

// reconnectableTransport wraps an AbstractIoDevice factory with automatic
// reopen-on-error behavior: a device that errors out of a Read/Write is
// reopened in the background, up to openRetryTimes retries spaced
// openRetryDelay apart, unless Close has been called (the forceClose
// flag, which is sticky until the next explicit Open).
type reconnectableTransport struct {
	newDevice func() AbstractIoDevice

	openRetryTimes int
	openRetryDelay time.Duration

	logger logging.Logger

	mu         sync.Mutex
	state      reconnectState
	device     AbstractIoDevice
	forceClose bool
	events     chan transportNotification
}

// newReconnectableTransport wraps newDevice, called once per open/reopen
// attempt since most concrete devices (serial ports, sockets) can't be
// reused once closed.
func newReconnectableTransport(newDevice func() AbstractIoDevice, retryTimes int, retryDelay time.Duration, logger logging.Logger) *reconnectableTransport {
	if logger == nil {
		logger = logging.Discard()
	}
	return &reconnectableTransport{
		newDevice:      newDevice,
		openRetryTimes: retryTimes,
		openRetryDelay: retryDelay,
		logger:         logger,
		state:          stateClosed,
		events:         make(chan transportNotification, 16),
	}
}

// Events returns the channel transportNotifications are posted to:
// eventOpened/eventClosed/eventError, the latter whenever a background
// reopen attempt fails or a foreground I/O call observes an error.
func (t *reconnectableTransport) Events() <-chan transportNotification {
	return t.events
}

func (t *reconnectableTransport) notify(ev transportEvent, err error) {
	select {
	case t.events <- transportNotification{event: ev, err: err}:
	default:
	}
}

// Open dials the device, retrying up to openRetryTimes times (waiting
// openRetryDelay between attempts) before giving up.
func (t *reconnectableTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.state == stateOpened || t.state == stateOpening {
		t.mu.Unlock()
		return ErrTransportIsAlreadyOpen
	}
	t.state = stateOpening
	t.forceClose = false
	t.mu.Unlock()

	err := t.openWithRetry(ctx)

	t.mu.Lock()
	if err != nil {
		t.state = stateError
	} else {
		t.state = stateOpened
	}
	t.mu.Unlock()

	if err != nil {
		t.notify(eventError, err)
	} else {
		t.notify(eventOpened, nil)
	}
	return err
}

func (t *reconnectableTransport) openWithRetry(ctx context.Context) error {
	var lastErr error

	attempts := t.openRetryTimes + 1
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		t.mu.Lock()
		if t.forceClose {
			t.mu.Unlock()
			return ErrTransportClosed
		}
		t.mu.Unlock()

		dev := t.newDevice()
		if err := dev.Open(ctx); err != nil {
			lastErr = err
			t.logger.Warningf("open attempt %d/%d on %s failed: %v", i+1, attempts, dev.Name(), err)
			if i+1 < attempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(t.openRetryDelay):
				}
			}
			continue
		}

		t.mu.Lock()
		t.device = dev
		t.mu.Unlock()
		return nil
	}

	return lastErr
}

// Close marks the transport as explicitly closed: forceClose is sticky
// until the next Open call, so a background reopen in flight gives up
// rather than racing a fresh device back into existence.
func (t *reconnectableTransport) Close() error {
	t.mu.Lock()
	if t.state == stateClosed {
		t.mu.Unlock()
		return ErrTransportIsAlreadyClosed
	}
	t.state = stateClosing
	t.forceClose = true
	dev := t.device
	t.device = nil
	t.mu.Unlock()

	var err error
	if dev != nil {
		err = dev.Close()
	}

	t.mu.Lock()
	t.state = stateClosed
	t.mu.Unlock()

	t.notify(eventClosed, nil)
	return err
}

func (t *reconnectableTransport) Write(buf []byte) error {
	t.mu.Lock()
	dev := t.device
	open := t.state == stateOpened
	t.mu.Unlock()

	if !open || dev == nil {
		return ErrTransportClosed
	}

	if err := dev.Write(buf); err != nil {
		t.handleIOError(err)
		return err
	}
	return nil
}

func (t *reconnectableTransport) Read(ctx context.Context, buf []byte) (int, error) {
	t.mu.Lock()
	dev := t.device
	open := t.state == stateOpened
	t.mu.Unlock()

	if !open || dev == nil {
		return 0, ErrTransportClosed
	}

	n, err := dev.Read(ctx, buf)
	if err != nil {
		t.handleIOError(err)
	}
	return n, err
}

func (t *reconnectableTransport) Name() string {
	t.mu.Lock()
	dev := t.device
	t.mu.Unlock()
	if dev == nil {
		return "reconnectable(closed)"
	}
	return dev.Name()
}

// handleIOError flips the transport into stateError and kicks off a
// background reopen, unless Close() has already set forceClose. A
// per-request timeout is not a broken connection: the caller's retry
// still has a live device to write the next attempt to.
func (t *reconnectableTransport) handleIOError(ioErr error) {
	if isTimeoutErr(ioErr) {
		return
	}

	t.mu.Lock()
	if t.forceClose || t.state != stateOpened {
		t.mu.Unlock()
		return
	}
	t.state = stateError
	t.device = nil
	t.mu.Unlock()

	t.notify(eventError, ioErr)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.openRetryDelay*time.Duration(t.openRetryTimes+1))
		defer cancel()
		if err := t.openWithRetry(ctx); err != nil {
			t.mu.Lock()
			t.state = stateError
			t.mu.Unlock()
			t.notify(eventError, err)
			return
		}
		t.mu.Lock()
		t.state = stateOpened
		t.mu.Unlock()
		t.notify(eventOpened, nil)
	}()
}
