package mbserver

import (
	"github.com/paopaol/gomodbus"
)

// RequestHandler is the dispatch extension point: after decoding and
// validating an incoming request, ModbusServer hands it to the handler
// method matching its function code. The *Access types are the same
// payload-layer vehicles the client engine uses, so a handler built atop
// DataStore and a handwritten one share the same request/response shape.
//
// Returning a nil error sends back a positive response built from the
// returned access object; a non-nil error is translated to an exception
// response (see exceptionFor).
type RequestHandler interface {
	// HandleCoils serves read coils (0x01), write single coil (0x05) and
	// write multiple coils (0x0f). req.Quantity is always the number of
	// bits requested; for writes, req.Bits() holds the values to store
	// and the return value is ignored.
	HandleCoils(req *modbus.SingleBitAccess, isWrite bool) (*modbus.SingleBitAccess, error)

	// HandleDiscreteInputs serves read discrete inputs (0x02).
	HandleDiscreteInputs(req *modbus.SingleBitAccess) (*modbus.SingleBitAccess, error)

	// HandleHoldingRegisters serves read holding registers (0x03), write
	// single register (0x06) and write multiple registers (0x10).
	HandleHoldingRegisters(req *modbus.SixteenBitAccess, isWrite bool) (*modbus.SixteenBitAccess, error)

	// HandleInputRegisters serves read input registers (0x04).
	HandleInputRegisters(req *modbus.SixteenBitAccess) (*modbus.SixteenBitAccess, error)

	// HandleReadWriteMultipleRegisters serves function code 0x17: write
	// the write side first, then return the read side's current values.
	HandleReadWriteMultipleRegisters(read, write *modbus.SixteenBitAccess) (*modbus.SixteenBitAccess, error)
}

// DataStoreHandler is the default RequestHandler, backed by an in-memory
// DataStore. Applications that need to synthesize register values on the
// fly (rather than keep them resident) can implement RequestHandler
// directly instead.
type DataStoreHandler struct {
	Store *DataStore
}

// NewDataStoreHandler wraps store as a RequestHandler.
func NewDataStoreHandler(store *DataStore) *DataStoreHandler {
	return &DataStoreHandler{Store: store}
}

func (h *DataStoreHandler) HandleCoils(req *modbus.SingleBitAccess, isWrite bool) (*modbus.SingleBitAccess, error) {
	r := h.Store.coils
	if r == nil || !r.contains(req.StartAddress, req.Quantity) {
		return nil, modbus.Error(modbus.ExIllegalDataAddress)
	}

	if isWrite {
		if err := r.write(req.StartAddress, boolsOf(req)); err != nil {
			return nil, err
		}
		return req, nil
	}

	res := modbus.NewSingleBitAccess(req.StartAddress, req.Quantity)
	for i, v := range r.read(req.StartAddress, req.Quantity) {
		res.SetBit(req.StartAddress+uint16(i), boolToBit(v))
	}
	return res, nil
}

func (h *DataStoreHandler) HandleDiscreteInputs(req *modbus.SingleBitAccess) (*modbus.SingleBitAccess, error) {
	r := h.Store.discreteInputs
	if r == nil || !r.contains(req.StartAddress, req.Quantity) {
		return nil, modbus.Error(modbus.ExIllegalDataAddress)
	}

	res := modbus.NewSingleBitAccess(req.StartAddress, req.Quantity)
	for i, v := range r.read(req.StartAddress, req.Quantity) {
		res.SetBit(req.StartAddress+uint16(i), boolToBit(v))
	}
	return res, nil
}

func (h *DataStoreHandler) HandleHoldingRegisters(req *modbus.SixteenBitAccess, isWrite bool) (*modbus.SixteenBitAccess, error) {
	r := h.Store.holdingRegs
	if r == nil || !r.contains(req.StartAddress, req.Quantity) {
		return nil, modbus.Error(modbus.ExIllegalDataAddress)
	}

	if isWrite {
		if err := r.write(req.StartAddress, req.Values()); err != nil {
			return nil, err
		}
		return req, nil
	}

	res := modbus.NewSixteenBitAccess(req.StartAddress, req.Quantity)
	for i, v := range r.read(req.StartAddress, req.Quantity) {
		res.SetValue(req.StartAddress+uint16(i), v)
	}
	return res, nil
}

func (h *DataStoreHandler) HandleInputRegisters(req *modbus.SixteenBitAccess) (*modbus.SixteenBitAccess, error) {
	r := h.Store.inputRegs
	if r == nil || !r.contains(req.StartAddress, req.Quantity) {
		return nil, modbus.Error(modbus.ExIllegalDataAddress)
	}

	res := modbus.NewSixteenBitAccess(req.StartAddress, req.Quantity)
	for i, v := range r.read(req.StartAddress, req.Quantity) {
		res.SetValue(req.StartAddress+uint16(i), v)
	}
	return res, nil
}

func (h *DataStoreHandler) HandleReadWriteMultipleRegisters(read, write *modbus.SixteenBitAccess) (*modbus.SixteenBitAccess, error) {
	wr := h.Store.holdingRegs
	if wr == nil || !wr.contains(write.StartAddress, write.Quantity) {
		return nil, modbus.Error(modbus.ExIllegalDataAddress)
	}
	rr := h.Store.holdingRegs
	if rr == nil || !rr.contains(read.StartAddress, read.Quantity) {
		return nil, modbus.Error(modbus.ExIllegalDataAddress)
	}

	if err := wr.write(write.StartAddress, write.Values()); err != nil {
		return nil, err
	}

	res := modbus.NewSixteenBitAccess(read.StartAddress, read.Quantity)
	for i, v := range rr.read(read.StartAddress, read.Quantity) {
		res.SetValue(read.StartAddress+uint16(i), v)
	}
	return res, nil
}

func boolsOf(a *modbus.SingleBitAccess) []bool {
	out := make([]bool, a.Quantity)
	for i, v := range a.Bits() {
		out[i] = v == modbus.On
	}
	return out
}

func boolToBit(b bool) modbus.BitValue {
	if b {
		return modbus.On
	}
	return modbus.Off
}
