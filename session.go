package modbus

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/paopaol/gomodbus/internal/logging"
)

// isTimeoutErr reports whether err represents a request timing out,
// either because its per-request context deadline elapsed or because the
// underlying transport surfaced a net.Error with Timeout() set.
func isTimeoutErr(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return false
}

// sessionState is the client engine's FSM state: a single event-loop
// goroutine moves through Idle -> Sending -> WaitingResponse and back to
// Idle for every queued request.
type sessionState int

const (
	sessionIdle sessionState = iota
	sessionSending
	sessionWaitingResponse
)

// sessionJob is one request queued on the session engine, along with the
// channel its eventual Response (or terminal error) is delivered on.
type sessionJob struct {
	ctx    context.Context
	req    *Request
	result chan sessionResult
}

type sessionResult struct {
	resp *Response
	err  error
}

// Session is the client session engine: a transport-independent request/
// response pump sitting on top of a transport and a Decoder/Encoder pair.
// It owns retrying, per-request timeouts, broadcast handling and (for
// RTU) the t3.5 inter-frame pacing, and hands each completion back to the
// caller that submitted it; reparsing the response into access objects
// is left to that caller (Client).
type Session struct {
	transport AbstractIoDevice
	mode      TransferMode
	decoder   *Decoder

	Retries        int
	RequestTimeout time.Duration
	BroadcastDelay time.Duration
	// EnableDump logs the hex of every sent and received frame at Debug
	// level.
	EnableDump bool
	// T1 and T35 pace RTU writes (3.5 character times of silence
	// required before transmitting); both are zero for MBAP/ASCII.
	T1  time.Duration
	T35 time.Duration

	Diagnosis *RuntimeDiagnosis
	logger    logging.Logger

	queue chan *sessionJob
	state sessionState

	mu           sync.Mutex
	txnID        uint16
	lastActivity time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession builds a session engine driving transport with the given
// framing mode. Call Run in its own goroutine before Submit.
func NewSession(transport AbstractIoDevice, mode TransferMode, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		transport:      transport,
		mode:           mode,
		decoder:        NewClientDecoder(mode),
		Retries:        3,
		RequestTimeout: time.Second,
		BroadcastDelay: 100 * time.Millisecond,
		Diagnosis:      NewRuntimeDiagnosis(),
		logger:         logger,
		queue:          make(chan *sessionJob, 64),
		done:           make(chan struct{}),
	}
}

// Run processes queued requests until ctx is done or Stop is called. It
// must run in its own goroutine; Submit blocks until Run is draining the
// queue.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case job := <-s.queue:
			s.process(job)
		}
	}
}

// Stop causes Run to return once the current job (if any) completes.
func (s *Session) Stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Submit enqueues req and blocks until a Response (or a local error -
// timeout, transport failure, encoding failure) is available.
func (s *Session) Submit(ctx context.Context, req *Request) (*Response, error) {
	job := &sessionJob{ctx: ctx, req: req, result: make(chan sessionResult, 1)}

	select {
	case s.queue <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.result:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) process(job *sessionJob) {
	broadcast := job.req.ServerAddress == 0
	attemptsLeft := s.Retries + 1 // the original attempt, plus configured retries

	var resp *Response
	var err error

	for attemptsLeft > 0 {
		attemptsLeft--

		s.setState(sessionSending)
		resp, err = s.roundTrip(job.ctx, job.req, broadcast)

		if err == nil || !isTimeoutErr(err) {
			break
		}
		s.logger.Warningf("request to unit %d (%s) timed out, %d attempt(s) left", job.req.ServerAddress, job.req.FunctionCode, attemptsLeft)
		s.decoder.Reset()
	}

	s.setState(sessionIdle)

	if err != nil && isTimeoutErr(err) {
		resp = &Response{Adu: job.req.Adu, Error: Timeout}
		err = nil
	}

	if s.Diagnosis != nil && err == nil {
		s.Diagnosis.Record(job.req.ServerAddress, job.req.FunctionCode, resp.Error)
	}

	if err != nil {
		job.result <- sessionResult{err: err}
		return
	}
	job.result <- sessionResult{resp: resp}
}

func (s *Session) roundTrip(ctx context.Context, req *Request, broadcast bool) (*Response, error) {
	s.paceRTU()

	txnID := s.nextTxnID()
	wire, err := Encode(s.mode, &req.Adu, txnID)
	if err != nil {
		return nil, err
	}

	if s.EnableDump {
		s.logger.Debugf("tx: % x", wire)
	}

	if err := s.transport.Write(wire); err != nil {
		return nil, err
	}
	s.markActivity(len(wire))

	if broadcast {
		time.Sleep(s.BroadcastDelay)
		return &Response{Adu: req.Adu, Error: NoError}, nil
	}

	s.setState(sessionWaitingResponse)

	reqCtx, cancel := context.WithTimeout(ctx, s.RequestTimeout)
	defer cancel()

	frame, err := s.readMatchingFrame(reqCtx, req, txnID)
	if err != nil {
		return nil, err
	}
	s.markActivity(0)

	return &Response{Adu: *frame.Adu, Error: frame.Err}, nil
}

// readMatchingFrame reads off the transport until a response addressed
// to this request is decoded: the server address must match in every
// mode, and for MBAP the transaction id must match too (RTU/ASCII carry
// no transaction id and are assumed to run over a transport with a
// single outstanding request).
func (s *Session) readMatchingFrame(ctx context.Context, req *Request, txnID uint16) (*DecodedFrame, error) {
	buf := make([]byte, 512)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.transport.Read(ctx, buf)
		if err != nil {
			return nil, err
		}

		if s.EnableDump {
			s.logger.Debugf("rx: % x", buf[:n])
		}

		for _, frame := range s.decoder.Feed(buf[:n]) {
			if s.mode == TransferModeMBAP && frame.Adu.TransactionID != txnID {
				s.logger.Warningf("discarding frame with unexpected transaction id 0x%04x (expected 0x%04x)", frame.Adu.TransactionID, txnID)
				continue
			}
			if frame.Adu.ServerAddress != req.ServerAddress {
				s.logger.Warningf("discarding frame from unexpected unit %d (expected %d)", frame.Adu.ServerAddress, req.ServerAddress)
				continue
			}
			f := frame
			return &f, nil
		}
	}
}

func (s *Session) setState(st sessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) nextTxnID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txnID++
	return s.txnID
}

// paceRTU enforces the t3.5 silent-interval requirement before
// transmitting on an RTU link; a no-op for ASCII/MBAP (T35 is left zero).
func (s *Session) paceRTU() {
	if s.T35 == 0 {
		return
	}
	s.mu.Lock()
	last := s.lastActivity
	s.mu.Unlock()

	if wait := last.Add(s.T35).Sub(time.Now()); wait > 0 {
		time.Sleep(wait)
	}
}

func (s *Session) markActivity(writtenBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if writtenBytes > 0 && s.T1 > 0 {
		s.lastActivity = time.Now().Add(time.Duration(writtenBytes) * s.T1)
	} else {
		s.lastActivity = time.Now()
	}
}

// serialCharTime returns how long one byte takes on the wire at the
// given baud rate (1 start bit, 8 data bits, 1 parity/stop bit, 1 stop
// bit), used to size T1/T35 for RTU sessions.
func serialCharTime(baudRate int) time.Duration {
	if baudRate <= 0 {
		return 0
	}
	return 11 * time.Second / time.Duration(baudRate)
}

// computeT35 follows the Modbus RTU spec: a fixed 1750us above 19200
// baud, otherwise 3.5 character times.
func computeT35(baudRate int) time.Duration {
	if baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return (serialCharTime(baudRate) * 35) / 10
}
