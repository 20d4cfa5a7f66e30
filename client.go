package modbus

import (
	"context"
	"time"

	"github.com/paopaol/gomodbus/internal/logging"
)

// Configuration groups every knob a Client can be built with; see the
// With* functional options below for the ergonomic constructor surface.
type Configuration struct {
	URL            string
	Speed          int
	DataBits       int
	Parity         Parity
	StopBits       int
	Timeout        time.Duration
	Retries        int
	BroadcastDelay time.Duration
	// OpenRetryTimes/OpenRetryDelay govern the reconnectable transport's
	// dial retries, both at initial Open and on an automatic reopen
	// after an I/O error. OpenRetryTimes defaults to 3.
	OpenRetryTimes int
	OpenRetryDelay time.Duration
	// EnableDump logs the hex of every sent and received frame at Debug
	// level through Logger.
	EnableDump bool
	TLS        *TLSConfig
	Logger     logging.Logger
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithUnitID sets the default unit (server) id used when a method call
// doesn't specify one via SetUnitID.
func WithUnitID(id uint8) ClientOption {
	return func(c *Client) { c.unitID = id }
}

// WithEndianness sets the byte order used to pack/unpack multi-register
// values (32/64-bit integers and floats).
func WithEndianness(e Endianness) ClientOption {
	return func(c *Client) { c.endianness = e }
}

// WithWordOrder sets the word order used to pack/unpack 32/64-bit values.
func WithWordOrder(w WordOrder) ClientOption {
	return func(c *Client) { c.wordOrder = w }
}

// WithTimeout sets the per-request timeout (default 1s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.conf.Timeout = d }
}

// WithRetries sets the number of retries attempted after the first
// timed-out attempt (default 3, i.e. 4 total attempts).
func WithRetries(n int) ClientOption {
	return func(c *Client) { c.conf.Retries = n }
}

// WithLogger sets the client's logging sink.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.conf.Logger = l }
}

// WithEnableDump turns on hex dumping of every sent and received frame
// at Debug level.
func WithEnableDump(enable bool) ClientOption {
	return func(c *Client) { c.conf.EnableDump = enable }
}

// Client is a synchronous Modbus client: every Read*/Write* method
// blocks until its request completes (or times out), while internally
// the request is run through the session engine's single event loop, so
// that retries, pacing and broadcast handling stay centralized in one
// place regardless of which method the caller used.
type Client struct {
	conf       Configuration
	endpoint   *endpoint
	unitID     uint8
	endianness Endianness
	wordOrder  WordOrder

	transport *reconnectableTransport
	session   *Session
	cancelRun context.CancelFunc
}

// NewClient parses conf.URL (a modbus.tcp://, modbus.tls://, modbus.udp://
// or modbus.file:// url) and builds a Client, not yet connected: call
// Open to dial the endpoint and start the session engine.
func NewClient(conf *Configuration, opts ...ClientOption) (*Client, error) {
	ep, err := parseEndpointURL(conf.URL)
	if err != nil {
		return nil, err
	}

	if ep.kind == endpointSerial {
		if conf.Speed > 0 {
			ep.serial.BaudRate = conf.Speed
		}
		if conf.DataBits > 0 {
			ep.serial.DataBits = conf.DataBits
		}
		if conf.StopBits > 0 {
			ep.serial.StopBits = conf.StopBits
		}
		ep.serial.Parity = conf.Parity
	}

	c := &Client{
		conf:       *conf,
		endpoint:   ep,
		unitID:     1,
		endianness: BigEndian,
		wordOrder:  HighWordFirst,
	}
	if c.conf.Timeout == 0 {
		c.conf.Timeout = time.Second
	}
	if c.conf.Retries == 0 {
		c.conf.Retries = 3
	}
	if c.conf.BroadcastDelay == 0 {
		c.conf.BroadcastDelay = 100 * time.Millisecond
	}
	if c.conf.OpenRetryTimes == 0 {
		c.conf.OpenRetryTimes = 3
	}
	if c.conf.OpenRetryDelay == 0 {
		c.conf.OpenRetryDelay = 500 * time.Millisecond
	}

	for _, o := range opts {
		o(c)
	}

	return c, nil
}

func (c *Client) transferMode() TransferMode {
	switch c.endpoint.kind {
	case endpointSerial:
		return TransferModeRTU
	default:
		return TransferModeMBAP
	}
}

func (c *Client) newDevice() AbstractIoDevice {
	switch c.endpoint.kind {
	case endpointTCP:
		return newTCPDevice(c.endpoint.addr)
	case endpointUDP:
		return newUDPDevice(c.endpoint.addr)
	case endpointTLS:
		return newTLSDevice(c.endpoint.addr, c.conf.TLS)
	case endpointSerial:
		conf := c.endpoint.serial
		return newSerialDevice(&conf)
	default:
		return nil
	}
}

// Open dials the configured endpoint and starts the session engine. It
// blocks until the connection is established, retrying according to the
// reconnectable transport's own retry policy.
func (c *Client) Open() error {
	if c.transport != nil {
		return ErrTransportIsAlreadyOpen
	}

	logger := c.conf.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	c.transport = newReconnectableTransport(c.newDevice, c.conf.OpenRetryTimes, c.conf.OpenRetryDelay, logger)

	ctx, cancel := context.WithTimeout(context.Background(), c.conf.Timeout)
	defer cancel()
	if err := c.transport.Open(ctx); err != nil {
		c.transport = nil
		return err
	}

	c.session = NewSession(c.transport, c.transferMode(), logger)
	c.session.Retries = c.conf.Retries
	c.session.RequestTimeout = c.conf.Timeout
	c.session.BroadcastDelay = c.conf.BroadcastDelay
	c.session.EnableDump = c.conf.EnableDump
	if c.endpoint.kind == endpointSerial {
		c.session.T1 = serialCharTime(c.endpoint.serial.BaudRate)
		c.session.T35 = computeT35(c.endpoint.serial.BaudRate)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	c.cancelRun = cancelRun
	go c.session.Run(runCtx)

	return nil
}

// Close stops the session engine and closes the underlying transport.
func (c *Client) Close() error {
	if c.transport == nil {
		return ErrTransportIsAlreadyClosed
	}
	if c.cancelRun != nil {
		c.cancelRun()
	}
	if c.session != nil {
		c.session.Stop()
	}
	err := c.transport.Close()
	c.transport = nil
	c.session = nil
	return err
}

// SetUnitID changes the unit (server) id targeted by subsequent calls.
func (c *Client) SetUnitID(id uint8) {
	c.unitID = id
}

// Diagnosis returns the running tally of request/response outcomes seen
// by this client's session, useful for monitoring link health.
func (c *Client) Diagnosis() *RuntimeDiagnosis {
	if c.session == nil {
		return nil
	}
	return c.session.Diagnosis
}

func (c *Client) submit(adu Adu, ctx accessContext) (*Response, error) {
	if c.session == nil {
		return nil, ErrTransportClosed
	}
	adu.ServerAddress = c.unitID

	reqCtx, cancel := context.WithTimeout(context.Background(), c.conf.Timeout*time.Duration(c.conf.Retries+2))
	defer cancel()

	return c.session.Submit(reqCtx, &Request{Adu: adu, UserContext: ctx})
}

func responseErr(resp *Response) error {
	if resp.Error != NoError {
		return resp.Error
	}
	return nil
}

// ReadCoils reads quantity coils starting at addr.
func (c *Client) ReadCoils(addr uint16, quantity uint16) ([]bool, error) {
	access := NewSingleBitAccess(addr, quantity)
	resp, err := c.submit(Adu{FunctionCode: FcReadCoils, Payload: access.MarshalReadRequest()}, access)
	if err != nil {
		return nil, err
	}
	if err := responseErr(resp); err != nil {
		return nil, err
	}
	if !access.UnmarshalReadResponse(resp.Payload) {
		return nil, ErrProtocolError
	}
	return boolsOfBits(access.Bits()), nil
}

// ReadDiscreteInputs reads quantity discrete inputs starting at addr.
func (c *Client) ReadDiscreteInputs(addr uint16, quantity uint16) ([]bool, error) {
	access := NewSingleBitAccess(addr, quantity)
	resp, err := c.submit(Adu{FunctionCode: FcReadDiscreteInputs, Payload: access.MarshalReadRequest()}, access)
	if err != nil {
		return nil, err
	}
	if err := responseErr(resp); err != nil {
		return nil, err
	}
	if !access.UnmarshalReadResponse(resp.Payload) {
		return nil, ErrProtocolError
	}
	return boolsOfBits(access.Bits()), nil
}

// ReadHoldingRegisters reads quantity holding registers starting at addr.
func (c *Client) ReadHoldingRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	access := NewSixteenBitAccess(addr, quantity)
	resp, err := c.submit(Adu{FunctionCode: FcReadHoldingRegisters, Payload: access.MarshalReadRequest()}, access)
	if err != nil {
		return nil, err
	}
	if err := responseErr(resp); err != nil {
		return nil, err
	}
	if !access.UnmarshalReadResponse(resp.Payload) {
		return nil, ErrProtocolError
	}
	return access.Values(), nil
}

// ReadInputRegisters reads quantity input registers starting at addr.
func (c *Client) ReadInputRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	access := NewSixteenBitAccess(addr, quantity)
	resp, err := c.submit(Adu{FunctionCode: FcReadInputRegisters, Payload: access.MarshalReadRequest()}, access)
	if err != nil {
		return nil, err
	}
	if err := responseErr(resp); err != nil {
		return nil, err
	}
	if !access.UnmarshalReadResponse(resp.Payload) {
		return nil, ErrProtocolError
	}
	return access.Values(), nil
}

// WriteCoil writes a single coil.
func (c *Client) WriteCoil(addr uint16, value bool) error {
	access := NewSingleBitAccess(addr, 1)
	access.SetBit(addr, boolToBitValue(value))
	resp, err := c.submit(Adu{FunctionCode: FcWriteSingleCoil, Payload: access.MarshalSingleWriteRequest()}, access)
	if err != nil {
		return err
	}
	return responseErr(resp)
}

// WriteCoils writes multiple consecutive coils starting at addr.
func (c *Client) WriteCoils(addr uint16, values []bool) error {
	access := NewSingleBitAccess(addr, uint16(len(values)))
	for i, v := range values {
		access.SetBit(addr+uint16(i), boolToBitValue(v))
	}
	resp, err := c.submit(Adu{FunctionCode: FcWriteMultipleCoils, Payload: access.MarshalMultipleWriteRequest()}, access)
	if err != nil {
		return err
	}
	return responseErr(resp)
}

// WriteRegister writes a single holding register.
func (c *Client) WriteRegister(addr uint16, value uint16) error {
	access := NewSixteenBitAccess(addr, 1)
	access.SetValue(addr, value)
	resp, err := c.submit(Adu{FunctionCode: FcWriteSingleRegister, Payload: access.MarshalSingleWriteRequest()}, access)
	if err != nil {
		return err
	}
	return responseErr(resp)
}

// WriteRegisters writes multiple consecutive holding registers starting
// at addr.
func (c *Client) WriteRegisters(addr uint16, values []uint16) error {
	access := NewSixteenBitAccess(addr, uint16(len(values)))
	for i, v := range values {
		access.SetValue(addr+uint16(i), v)
	}
	resp, err := c.submit(Adu{FunctionCode: FcWriteMultipleRegisters, Payload: access.MarshalMultipleWriteRequest()}, access)
	if err != nil {
		return err
	}
	return responseErr(resp)
}

// ReadWriteMultipleRegisters writes writeValues starting at writeAddr,
// then reads readQuantity registers starting at readAddr, all in a
// single exchange (function code 0x17).
func (c *Client) ReadWriteMultipleRegisters(readAddr, readQuantity, writeAddr uint16, writeValues []uint16) ([]uint16, error) {
	read := NewSixteenBitAccess(readAddr, readQuantity)
	write := NewSixteenBitAccess(writeAddr, uint16(len(writeValues)))
	for i, v := range writeValues {
		write.SetValue(writeAddr+uint16(i), v)
	}

	payload := MarshalReadWriteMultipleRequest(read, write)
	resp, err := c.submit(Adu{FunctionCode: FcReadWriteMultipleRegisters, Payload: payload}, read)
	if err != nil {
		return nil, err
	}
	if err := responseErr(resp); err != nil {
		return nil, err
	}
	if !read.UnmarshalReadResponse(resp.Payload) {
		return nil, ErrProtocolError
	}
	return read.Values(), nil
}

// ReadUint32s reads quantity 32-bit values (2 registers each) starting at
// addr out of the holding register file, packed per the client's
// configured Endianness/WordOrder.
func (c *Client) ReadUint32s(addr uint16, quantity uint16) ([]uint32, error) {
	regs, err := c.ReadHoldingRegisters(addr, quantity*2)
	if err != nil {
		return nil, err
	}
	return bytesToUint32(c.endianness, c.wordOrder, uint16sToBytes(c.endianness, regs)), nil
}

// ReadFloat32s reads quantity IEEE-754 single-precision floats (2
// registers each) starting at addr out of the holding register file.
func (c *Client) ReadFloat32s(addr uint16, quantity uint16) ([]float32, error) {
	regs, err := c.ReadHoldingRegisters(addr, quantity*2)
	if err != nil {
		return nil, err
	}
	return bytesToFloat32(c.endianness, c.wordOrder, uint16sToBytes(c.endianness, regs)), nil
}

func boolsOfBits(bits []BitValue) []bool {
	out := make([]bool, len(bits))
	for i, v := range bits {
		out[i] = v == On
	}
	return out
}
