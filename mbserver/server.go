// Package mbserver implements the server half of the protocol: an
// address-space dispatcher (DataStore) sitting behind a TCP/MBAP
// listener, built on top of the shared modbus package's frame codec.
package mbserver

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/paopaol/gomodbus"
)

// ModbusServer accepts TCP connections framed as MBAP and dispatches
// decoded requests to a RequestHandler.
type ModbusServer struct {
	// Timeout closes a client connection that sits idle for this long.
	Timeout time.Duration
	// MaxClients caps the number of concurrent client connections; 0
	// means unlimited.
	MaxClients uint

	logger  LeveledLogger
	handler RequestHandler

	lock     sync.Mutex
	listener net.Listener
	clients  []net.Conn
}

// Option configures a ModbusServer at construction time.
type Option func(*ModbusServer) error

// Logger sets the server's logging sink.
func Logger(logger LeveledLogger) Option {
	return func(ms *ModbusServer) error {
		ms.logger = logger
		return nil
	}
}

// Timeout sets the idle connection timeout.
func Timeout(timeout time.Duration) Option {
	return func(ms *ModbusServer) error {
		ms.Timeout = timeout
		return nil
	}
}

// MaxClients caps the number of concurrent client connections.
func MaxClients(max uint) Option {
	return func(ms *ModbusServer) error {
		ms.MaxClients = max
		return nil
	}
}

// New builds a server dispatching decoded requests to handler.
func New(handler RequestHandler, opts ...Option) (*ModbusServer, error) {
	ms := &ModbusServer{
		Timeout: 30 * time.Second,
		handler: handler,
		logger:  newLogger("mbserver"),
	}

	for _, o := range opts {
		if err := o(ms); err != nil {
			return nil, err
		}
	}

	return ms, nil
}

// Start accepts connections off l until Stop is called.
func (ms *ModbusServer) Start(l net.Listener) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.listener != nil {
		return errors.New("mbserver: already started")
	}
	ms.listener = l

	go ms.acceptLoop()

	return nil
}

// Stop closes the listener and every active client connection.
func (ms *ModbusServer) Stop() error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.listener == nil {
		return errors.New("mbserver: not started")
	}

	err := ms.listener.Close()
	for _, c := range ms.clients {
		c.Close()
	}
	ms.listener = nil
	ms.clients = nil

	return err
}

func (ms *ModbusServer) acceptLoop() {
	for {
		conn, err := ms.listener.Accept()
		if err != nil {
			ms.lock.Lock()
			stopped := ms.listener == nil
			ms.lock.Unlock()
			if stopped {
				return
			}
			ms.logger.Warningf("accept failed: %v", err)
			continue
		}

		ms.lock.Lock()
		accepted := ms.MaxClients == 0 || uint(len(ms.clients)) < ms.MaxClients
		if accepted {
			ms.clients = append(ms.clients, conn)
		}
		ms.lock.Unlock()

		if !accepted {
			ms.logger.Warningf("rejecting %v: max clients reached", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go ms.serveConn(conn)
	}
}

func (ms *ModbusServer) serveConn(conn net.Conn) {
	defer func() {
		ms.lock.Lock()
		for i := range ms.clients {
			if ms.clients[i] == conn {
				ms.clients[i] = ms.clients[len(ms.clients)-1]
				ms.clients = ms.clients[:len(ms.clients)-1]
				break
			}
		}
		ms.lock.Unlock()
		conn.Close()
	}()

	dec := modbus.NewServerDecoder(modbus.TransferModeMBAP)
	rxbuf := make([]byte, 512)

	for {
		if ms.Timeout > 0 {
			if err := conn.SetDeadline(time.Now().Add(ms.Timeout)); err != nil {
				return
			}
		}

		n, err := conn.Read(rxbuf)
		if err != nil {
			return
		}

		for _, frame := range dec.Feed(rxbuf[:n]) {
			ms.dispatch(conn, frame)
		}
	}
}

// dispatch implements the six-step request processing algorithm: drop
// frames that failed CRC/size validation, suppress the response for
// broadcast requests (unit id 0), answer unknown function codes and
// handler errors with an exception response, and otherwise hand the
// decoded payload to the matching RequestHandler method.
func (ms *ModbusServer) dispatch(conn net.Conn, frame modbus.DecodedFrame) {
	adu := frame.Adu
	broadcast := adu.ServerAddress == 0

	if frame.Err == modbus.StorageParityError {
		ms.logger.Warningf("dropping frame with bad parity from %v", conn.RemoteAddr())
		return
	}

	res, err := ms.handle(adu)
	if broadcast {
		return
	}

	var out *modbus.Adu
	if err != nil {
		out = ms.exceptionFor(adu, err)
	} else {
		out = res
	}
	out.TransactionID = adu.TransactionID

	wire, err := modbus.Encode(modbus.TransferModeMBAP, out, adu.TransactionID)
	if err != nil {
		ms.logger.Errorf("failed to encode response: %v", err)
		return
	}
	if _, err := conn.Write(wire); err != nil {
		ms.logger.Warningf("failed to write response: %v", err)
	}
}

func (ms *ModbusServer) handle(adu *modbus.Adu) (*modbus.Adu, error) {
	switch adu.FunctionCode {
	case modbus.FcReadCoils:
		req := modbus.NewSingleBitAccess(0, 0)
		if !req.UnmarshalReadRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		res, err := ms.handler.HandleCoils(req, false)
		if err != nil {
			return nil, err
		}
		return ms.singleBitResponse(adu, res.MarshalReadResponse()), nil

	case modbus.FcReadDiscreteInputs:
		req := modbus.NewSingleBitAccess(0, 0)
		if !req.UnmarshalReadRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		res, err := ms.handler.HandleDiscreteInputs(req)
		if err != nil {
			return nil, err
		}
		return ms.singleBitResponse(adu, res.MarshalReadResponse()), nil

	case modbus.FcWriteSingleCoil:
		req := modbus.NewSingleBitAccess(0, 0)
		if !req.UnmarshalSingleWriteRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		if _, err := ms.handler.HandleCoils(req, true); err != nil {
			return nil, err
		}
		return ms.singleBitResponse(adu, req.MarshalSingleWriteRequest()), nil

	case modbus.FcWriteMultipleCoils:
		req := modbus.NewSingleBitAccess(0, 0)
		if !req.UnmarshalMultipleWriteRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		if _, err := ms.handler.HandleCoils(req, true); err != nil {
			return nil, err
		}
		return ms.echoRangeResponse(adu, req.StartAddress, req.Quantity), nil

	case modbus.FcReadHoldingRegisters:
		req := modbus.NewSixteenBitAccess(0, 0)
		if !req.UnmarshalReadRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		res, err := ms.handler.HandleHoldingRegisters(req, false)
		if err != nil {
			return nil, err
		}
		return ms.sixteenBitResponse(adu, res.MarshalReadResponse()), nil

	case modbus.FcReadInputRegisters:
		req := modbus.NewSixteenBitAccess(0, 0)
		if !req.UnmarshalReadRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		res, err := ms.handler.HandleInputRegisters(req)
		if err != nil {
			return nil, err
		}
		return ms.sixteenBitResponse(adu, res.MarshalReadResponse()), nil

	case modbus.FcWriteSingleRegister:
		req := modbus.NewSixteenBitAccess(0, 0)
		if !req.UnmarshalSingleWriteRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		if _, err := ms.handler.HandleHoldingRegisters(req, true); err != nil {
			return nil, err
		}
		return ms.sixteenBitResponse(adu, req.MarshalSingleWriteRequest()), nil

	case modbus.FcWriteMultipleRegisters:
		req := modbus.NewSixteenBitAccess(0, 0)
		if !req.UnmarshalMultipleWriteRequest(adu.Payload) {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		if _, err := ms.handler.HandleHoldingRegisters(req, true); err != nil {
			return nil, err
		}
		return ms.echoRangeResponse(adu, req.StartAddress, req.Quantity), nil

	case modbus.FcReadWriteMultipleRegisters:
		read, write, ok := modbus.UnmarshalReadWriteMultipleRequest(adu.Payload)
		if !ok {
			return nil, modbus.Error(modbus.ExIllegalDataValue)
		}
		res, err := ms.handler.HandleReadWriteMultipleRegisters(read, write)
		if err != nil {
			return nil, err
		}
		return ms.sixteenBitResponse(adu, res.MarshalReadResponse()), nil

	default:
		return nil, modbus.Error(modbus.ExIllegalFunction)
	}
}

func (ms *ModbusServer) singleBitResponse(req *modbus.Adu, payload []byte) *modbus.Adu {
	return &modbus.Adu{ServerAddress: req.ServerAddress, FunctionCode: req.FunctionCode, Payload: payload}
}

func (ms *ModbusServer) sixteenBitResponse(req *modbus.Adu, payload []byte) *modbus.Adu {
	return &modbus.Adu{ServerAddress: req.ServerAddress, FunctionCode: req.FunctionCode, Payload: payload}
}

func (ms *ModbusServer) echoRangeResponse(req *modbus.Adu, start, quantity uint16) *modbus.Adu {
	out := make([]byte, 4)
	out[0], out[1] = byte(start>>8), byte(start)
	out[2], out[3] = byte(quantity>>8), byte(quantity)
	return &modbus.Adu{ServerAddress: req.ServerAddress, FunctionCode: req.FunctionCode, Payload: out}
}

// exceptionFor maps a handler error to an exception response, defaulting
// to ExServerDeviceFailure for errors the handler didn't express as a
// modbus.Error exception.
func (ms *ModbusServer) exceptionFor(req *modbus.Adu, err error) *modbus.Adu {
	var merr modbus.Error
	if e, ok := err.(modbus.Error); ok {
		merr = e
	} else {
		merr = modbus.Error(modbus.ExServerDeviceFailure)
		ms.logger.Errorf("handler error for %s: %v", req.FunctionCode, err)
	}

	ex, _ := merr.Exception()
	return modbus.NewExceptionResponse(req.ServerAddress, req.FunctionCode, ex)
}
