package mbserver

import (
	"sync"

	"github.com/paopaol/gomodbus"
)

// WriteGuard is consulted before a write request is applied to a region.
// Returning a non-nil error aborts the write and is reported back to the
// client as that error's exception code (see exceptionFor).
type WriteGuard func(address uint16, quantity uint16) error

// CoilsChangeFunc is invoked, synchronously and under no lock held by the
// caller, after a WriteSingleCoil/WriteMultipleCoils request is applied:
// once per coil whose value changed, with that coil's address and a
// one-element values slice. Coils written with their current value do
// not trigger it.
type CoilsChangeFunc func(address uint16, values []bool)

// RegistersChangeFunc is invoked after a WriteSingleRegister/
// WriteMultipleRegisters/ReadWriteMultipleRegisters request is applied,
// once with the whole written span, and only if at least one register in
// that span changed value.
type RegistersChangeFunc func(address uint16, values []uint16)

// bitRegion is a sparse, range-bounded table of coil or discrete-input
// values, grounded on the region model of modbus_server_p.h: every region
// owns its address range and decides independently whether it is
// writable.
type bitRegion struct {
	mu        sync.RWMutex
	start     uint16
	quantity  uint16
	values    map[uint16]bool
	writable  bool
	guard     WriteGuard
	onChanged CoilsChangeFunc
}

func newBitRegion(start, quantity uint16, writable bool) *bitRegion {
	return &bitRegion{
		start:    start,
		quantity: quantity,
		values:   make(map[uint16]bool, quantity),
		writable: writable,
	}
}

func (r *bitRegion) contains(address, quantity uint16) bool {
	if quantity == 0 {
		return false
	}
	last := uint32(address) + uint32(quantity) - 1
	return address >= r.start && last <= uint32(r.start)+uint32(r.quantity)-1
}

func (r *bitRegion) read(address, quantity uint16) []bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]bool, quantity)
	for i := range out {
		out[i] = r.values[address+uint16(i)]
	}
	return out
}

func (r *bitRegion) write(address uint16, values []bool) error {
	if !r.writable {
		return modbus.Error(modbus.ExIllegalFunction)
	}
	if r.guard != nil {
		if err := r.guard(address, uint16(len(values))); err != nil {
			return err
		}
	}

	r.mu.Lock()
	var changedAddrs []uint16
	for i, v := range values {
		addr := address + uint16(i)
		if r.values[addr] != v {
			changedAddrs = append(changedAddrs, addr)
		}
		r.values[addr] = v
	}
	r.mu.Unlock()

	if r.onChanged != nil {
		for _, addr := range changedAddrs {
			r.onChanged(addr, []bool{values[addr-address]})
		}
	}
	return nil
}

// wordRegion is the 16-bit-register counterpart of bitRegion, backing the
// holding-register and input-register stores.
type wordRegion struct {
	mu        sync.RWMutex
	start     uint16
	quantity  uint16
	values    map[uint16]uint16
	writable  bool
	guard     WriteGuard
	onChanged RegistersChangeFunc
}

func newWordRegion(start, quantity uint16, writable bool) *wordRegion {
	return &wordRegion{
		start:    start,
		quantity: quantity,
		values:   make(map[uint16]uint16, quantity),
		writable: writable,
	}
}

func (r *wordRegion) contains(address, quantity uint16) bool {
	if quantity == 0 {
		return false
	}
	last := uint32(address) + uint32(quantity) - 1
	return address >= r.start && last <= uint32(r.start)+uint32(r.quantity)-1
}

func (r *wordRegion) read(address, quantity uint16) []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint16, quantity)
	for i := range out {
		out[i] = r.values[address+uint16(i)]
	}
	return out
}

func (r *wordRegion) write(address uint16, values []uint16) error {
	if !r.writable {
		return modbus.Error(modbus.ExIllegalFunction)
	}
	if r.guard != nil {
		if err := r.guard(address, uint16(len(values))); err != nil {
			return err
		}
	}

	r.mu.Lock()
	changed := false
	for i, v := range values {
		addr := address + uint16(i)
		if r.values[addr] != v {
			changed = true
		}
		r.values[addr] = v
	}
	r.mu.Unlock()

	if changed && r.onChanged != nil {
		r.onChanged(address, values)
	}
	return nil
}

// DataStore is the default, in-memory RequestHandler backing: four
// independent register files (coils, discrete inputs, holding registers,
// input registers), each configured with its own address range, write
// guard and change callback. It is the Go-native replacement for the
// register-file bookkeeping in modbus_server_p.h.
type DataStore struct {
	coils          *bitRegion
	discreteInputs *bitRegion
	holdingRegs    *wordRegion
	inputRegs      *wordRegion
}

// NewDataStore builds an empty store; call the Handle* methods to carve
// out the address ranges the server will actually serve. Addresses
// outside every configured range are reported as ExIllegalDataAddress.
func NewDataStore() *DataStore {
	return &DataStore{}
}

// HandleCoils configures the coil (read-write, function codes 0x01/0x05/
// 0x0f) address range.
func (s *DataStore) HandleCoils(start, quantity uint16, guard WriteGuard, onChanged CoilsChangeFunc) {
	r := newBitRegion(start, quantity, true)
	r.guard = guard
	r.onChanged = onChanged
	s.coils = r
}

// HandleDiscreteInputs configures the discrete-input (read-only, function
// code 0x02) address range.
func (s *DataStore) HandleDiscreteInputs(start, quantity uint16) {
	s.discreteInputs = newBitRegion(start, quantity, false)
}

// HandleHoldingRegisters configures the holding-register (read-write,
// function codes 0x03/0x06/0x10/0x17) address range.
func (s *DataStore) HandleHoldingRegisters(start, quantity uint16, guard WriteGuard, onChanged RegistersChangeFunc) {
	r := newWordRegion(start, quantity, true)
	r.guard = guard
	r.onChanged = onChanged
	s.holdingRegs = r
}

// HandleInputRegisters configures the input-register (read-only, function
// code 0x04) address range.
func (s *DataStore) HandleInputRegisters(start, quantity uint16) {
	s.inputRegs = newWordRegion(start, quantity, false)
}

// SetCoils and the sibling setters below let a server application push
// values into the store directly (e.g. from a polling loop driving
// physical I/O), bypassing the write guard that gates client-originated
// writes.
func (s *DataStore) SetCoils(address uint16, values []bool) {
	if s.coils == nil {
		return
	}
	s.coils.mu.Lock()
	for i, v := range values {
		s.coils.values[address+uint16(i)] = v
	}
	s.coils.mu.Unlock()
}

func (s *DataStore) SetDiscreteInputs(address uint16, values []bool) {
	if s.discreteInputs == nil {
		return
	}
	s.discreteInputs.mu.Lock()
	for i, v := range values {
		s.discreteInputs.values[address+uint16(i)] = v
	}
	s.discreteInputs.mu.Unlock()
}

func (s *DataStore) SetHoldingRegisters(address uint16, values []uint16) {
	if s.holdingRegs == nil {
		return
	}
	s.holdingRegs.mu.Lock()
	for i, v := range values {
		s.holdingRegs.values[address+uint16(i)] = v
	}
	s.holdingRegs.mu.Unlock()
}

func (s *DataStore) SetInputRegisters(address uint16, values []uint16) {
	if s.inputRegs == nil {
		return
	}
	s.inputRegs.mu.Lock()
	for i, v := range values {
		s.inputRegs.values[address+uint16(i)] = v
	}
	s.inputRegs.mu.Unlock()
}
