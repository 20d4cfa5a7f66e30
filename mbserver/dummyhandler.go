package mbserver

import "github.com/paopaol/gomodbus"

// DummyHandler answers every request with ExIllegalFunction, useful as a
// placeholder RequestHandler while a DataStore is still being wired up.
type DummyHandler struct{}

func (h *DummyHandler) HandleCoils(req *modbus.SingleBitAccess, isWrite bool) (*modbus.SingleBitAccess, error) {
	return nil, modbus.Error(modbus.ExIllegalFunction)
}

func (h *DummyHandler) HandleDiscreteInputs(req *modbus.SingleBitAccess) (*modbus.SingleBitAccess, error) {
	return nil, modbus.Error(modbus.ExIllegalFunction)
}

func (h *DummyHandler) HandleHoldingRegisters(req *modbus.SixteenBitAccess, isWrite bool) (*modbus.SixteenBitAccess, error) {
	return nil, modbus.Error(modbus.ExIllegalFunction)
}

func (h *DummyHandler) HandleInputRegisters(req *modbus.SixteenBitAccess) (*modbus.SixteenBitAccess, error) {
	return nil, modbus.Error(modbus.ExIllegalFunction)
}

func (h *DummyHandler) HandleReadWriteMultipleRegisters(read, write *modbus.SixteenBitAccess) (*modbus.SixteenBitAccess, error) {
	return nil, modbus.Error(modbus.ExIllegalFunction)
}
