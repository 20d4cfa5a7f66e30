package modbus

import "encoding/binary"

// BitValue is the tri-state value of a coil or discrete input.
// BadValue stands in for "absent", an address outside the range covered
// by a SingleBitAccess.
type BitValue int

const (
	Off BitValue = iota
	On
	BadValue
)

// accessContext is the tagged variant carried by Request.UserContext so
// the client's completion path can reparse a Response without a runtime
// type assertion on an opaque interface{}.
type accessContext interface {
	isAccessContext()
}

// SingleBitAccess is the payload-layer view of a coil or discrete-input
// region: a contiguous range of addresses and the bit values observed or
// to be written at each of them.
type SingleBitAccess struct {
	StartAddress uint16
	Quantity     uint16
	bits         map[uint16]BitValue
}

func (*SingleBitAccess) isAccessContext() {}

// NewSingleBitAccess builds an access object covering
// [start, start+quantity).
func NewSingleBitAccess(start uint16, quantity uint16) *SingleBitAccess {
	return &SingleBitAccess{
		StartAddress: start,
		Quantity:     quantity,
		bits:         make(map[uint16]BitValue, quantity),
	}
}

// Bit returns the value observed at addr, or BadValue if addr falls
// outside [StartAddress, StartAddress+Quantity).
func (a *SingleBitAccess) Bit(addr uint16) BitValue {
	if addr < a.StartAddress || addr >= a.StartAddress+a.Quantity {
		return BadValue
	}
	if v, ok := a.bits[addr]; ok {
		return v
	}
	return Off
}

// SetBit records the value to be sent/was received at addr.
func (a *SingleBitAccess) SetBit(addr uint16, v BitValue) {
	if a.bits == nil {
		a.bits = make(map[uint16]BitValue)
	}
	a.bits[addr] = v
}

// Bits returns the values of [StartAddress, StartAddress+Quantity) in
// ascending address order.
func (a *SingleBitAccess) Bits() []BitValue {
	out := make([]BitValue, a.Quantity)
	for i := range out {
		out[i] = a.Bit(a.StartAddress + uint16(i))
	}
	return out
}

// MarshalReadRequest encodes the 4-byte (start, quantity) read request
// payload shared by ReadCoils and ReadDiscreteInputs.
func (a *SingleBitAccess) MarshalReadRequest() []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], a.StartAddress)
	binary.BigEndian.PutUint16(out[2:4], a.Quantity)
	return out
}

// UnmarshalReadRequest parses a ReadCoils/ReadDiscreteInputs request
// payload into a.
func (a *SingleBitAccess) UnmarshalReadRequest(payload []byte) bool {
	if len(payload) != 4 {
		return false
	}
	a.StartAddress = binary.BigEndian.Uint16(payload[0:2])
	a.Quantity = binary.BigEndian.Uint16(payload[2:4])
	return true
}

// MarshalSingleWriteRequest encodes the 4-byte WriteSingleCoil request
// payload: address followed by 0xff00 (On) or 0x0000 (Off).
func (a *SingleBitAccess) MarshalSingleWriteRequest() []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], a.StartAddress)
	if a.Bit(a.StartAddress) == On {
		out[2], out[3] = 0xff, 0x00
	} else {
		out[2], out[3] = 0x00, 0x00
	}
	return out
}

// UnmarshalSingleWriteRequest parses a WriteSingleCoil request payload.
func (a *SingleBitAccess) UnmarshalSingleWriteRequest(payload []byte) bool {
	if len(payload) != 4 {
		return false
	}
	if payload[3] != 0x00 || (payload[2] != 0xff && payload[2] != 0x00) {
		return false
	}
	a.StartAddress = binary.BigEndian.Uint16(payload[0:2])
	a.Quantity = 1
	a.SetBit(a.StartAddress, boolToBitValue(payload[2] == 0xff))
	return true
}

// MarshalMultipleWriteRequest encodes the WriteMultipleCoils request
// payload: 4 header bytes, 1 byte count, then the packed bitmap
// (bit 0 first within each byte).
func (a *SingleBitAccess) MarshalMultipleWriteRequest() []byte {
	packed := packBits(a.Bits())
	out := make([]byte, 0, 5+len(packed))
	out = append(out, asUint16(a.StartAddress)...)
	out = append(out, asUint16(a.Quantity)...)
	out = append(out, uint8(len(packed)))
	out = append(out, packed...)
	return out
}

// UnmarshalMultipleWriteRequest parses a WriteMultipleCoils request
// payload.
func (a *SingleBitAccess) UnmarshalMultipleWriteRequest(payload []byte) bool {
	if len(payload) < 5 {
		return false
	}
	start := binary.BigEndian.Uint16(payload[0:2])
	quantity := binary.BigEndian.Uint16(payload[2:4])
	count := int(payload[4])
	expected := (int(quantity) + 7) / 8
	if count != expected || len(payload)-5 != count {
		return false
	}

	a.StartAddress = start
	a.Quantity = quantity
	bits := unpackBits(payload[5:], quantity)
	for i, v := range bits {
		a.SetBit(start+uint16(i), v)
	}
	return true
}

// MarshalReadResponse encodes the count-prefixed bitmap response shared
// by ReadCoils/ReadDiscreteInputs.
func (a *SingleBitAccess) MarshalReadResponse() []byte {
	packed := packBits(a.Bits())
	out := make([]byte, 0, 1+len(packed))
	out = append(out, uint8(len(packed)))
	out = append(out, packed...)
	return out
}

// UnmarshalReadResponse parses a ReadCoils/ReadDiscreteInputs response
// payload, assuming StartAddress/Quantity were already set from the
// originating request.
func (a *SingleBitAccess) UnmarshalReadResponse(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	count := int(payload[0])
	if len(payload)-1 != count {
		return false
	}
	bits := unpackBits(payload[1:], a.Quantity)
	for i, v := range bits {
		a.SetBit(a.StartAddress+uint16(i), v)
	}
	return true
}

func boolToBitValue(b bool) BitValue {
	if b {
		return On
	}
	return Off
}

func packBits(bits []BitValue) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v == On {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func unpackBits(buf []byte, quantity uint16) []BitValue {
	out := make([]BitValue, quantity)
	for i := range out {
		byteIdx := i / 8
		if byteIdx >= len(buf) {
			out[i] = BadValue
			continue
		}
		if buf[byteIdx]&(1<<uint(i%8)) != 0 {
			out[i] = On
		} else {
			out[i] = Off
		}
	}
	return out
}

// SixteenBitAccess is the payload-layer view of a holding-register or
// input-register region.
type SixteenBitAccess struct {
	StartAddress uint16
	Quantity     uint16
	values       map[uint16]uint16
}

func (*SixteenBitAccess) isAccessContext() {}

// NewSixteenBitAccess builds an access object covering
// [start, start+quantity).
func NewSixteenBitAccess(start uint16, quantity uint16) *SixteenBitAccess {
	return &SixteenBitAccess{
		StartAddress: start,
		Quantity:     quantity,
		values:       make(map[uint16]uint16, quantity),
	}
}

// Value returns the register value observed at addr, or 0 if unset.
func (a *SixteenBitAccess) Value(addr uint16) uint16 {
	return a.values[addr]
}

// SetValue records the register value to be sent/was received at addr.
func (a *SixteenBitAccess) SetValue(addr uint16, v uint16) {
	if a.values == nil {
		a.values = make(map[uint16]uint16)
	}
	a.values[addr] = v
}

// Values returns the values of [StartAddress, StartAddress+Quantity) in
// ascending address order.
func (a *SixteenBitAccess) Values() []uint16 {
	out := make([]uint16, a.Quantity)
	for i := range out {
		out[i] = a.values[a.StartAddress+uint16(i)]
	}
	return out
}

func asUint16(v uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, v)
	return out
}

// MarshalReadRequest encodes the 4-byte (start, quantity) read request
// payload shared by ReadHoldingRegisters and ReadInputRegisters.
func (a *SixteenBitAccess) MarshalReadRequest() []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], a.StartAddress)
	binary.BigEndian.PutUint16(out[2:4], a.Quantity)
	return out
}

// UnmarshalReadRequest parses a ReadHoldingRegisters/ReadInputRegisters
// request payload.
func (a *SixteenBitAccess) UnmarshalReadRequest(payload []byte) bool {
	if len(payload) != 4 {
		return false
	}
	a.StartAddress = binary.BigEndian.Uint16(payload[0:2])
	a.Quantity = binary.BigEndian.Uint16(payload[2:4])
	return true
}

// MarshalSingleWriteRequest encodes the 4-byte WriteSingleRegister
// request payload.
func (a *SixteenBitAccess) MarshalSingleWriteRequest() []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], a.StartAddress)
	binary.BigEndian.PutUint16(out[2:4], a.Value(a.StartAddress))
	return out
}

// UnmarshalSingleWriteRequest parses a WriteSingleRegister request
// payload.
func (a *SixteenBitAccess) UnmarshalSingleWriteRequest(payload []byte) bool {
	if len(payload) != 4 {
		return false
	}
	a.StartAddress = binary.BigEndian.Uint16(payload[0:2])
	a.Quantity = 1
	a.SetValue(a.StartAddress, binary.BigEndian.Uint16(payload[2:4]))
	return true
}

// MarshalMultipleWriteRequest encodes the WriteMultipleRegisters request
// payload: 4 header bytes, 1 byte count (quantity*2), then the
// big-endian register values.
func (a *SixteenBitAccess) MarshalMultipleWriteRequest() []byte {
	values := a.Values()
	out := make([]byte, 0, 5+2*len(values))
	out = append(out, asUint16(a.StartAddress)...)
	out = append(out, asUint16(a.Quantity)...)
	out = append(out, uint8(2*len(values)))
	for _, v := range values {
		out = append(out, asUint16(v)...)
	}
	return out
}

// UnmarshalMultipleWriteRequest parses a WriteMultipleRegisters request
// payload.
func (a *SixteenBitAccess) UnmarshalMultipleWriteRequest(payload []byte) bool {
	if len(payload) < 5 {
		return false
	}
	start := binary.BigEndian.Uint16(payload[0:2])
	quantity := binary.BigEndian.Uint16(payload[2:4])
	count := int(payload[4])
	if count != int(quantity)*2 || len(payload)-5 != count {
		return false
	}

	a.StartAddress = start
	a.Quantity = quantity
	for i := 0; i < int(quantity); i++ {
		a.SetValue(start+uint16(i), binary.BigEndian.Uint16(payload[5+2*i:7+2*i]))
	}
	return true
}

// MarshalReadResponse encodes the count-prefixed register list response
// shared by ReadHoldingRegisters/ReadInputRegisters.
func (a *SixteenBitAccess) MarshalReadResponse() []byte {
	values := a.Values()
	out := make([]byte, 0, 1+2*len(values))
	out = append(out, uint8(2*len(values)))
	for _, v := range values {
		out = append(out, asUint16(v)...)
	}
	return out
}

// UnmarshalReadResponse parses a ReadHoldingRegisters/ReadInputRegisters
// response payload, assuming StartAddress/Quantity were already set from
// the originating request.
func (a *SixteenBitAccess) UnmarshalReadResponse(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	count := int(payload[0])
	if len(payload)-1 != count || count != int(a.Quantity)*2 {
		return false
	}
	for i := 0; i < int(a.Quantity); i++ {
		a.SetValue(a.StartAddress+uint16(i), binary.BigEndian.Uint16(payload[1+2*i:3+2*i]))
	}
	return true
}

// MarshalReadWriteMultipleRequest encodes the function-0x17 request
// payload: read region (start, quantity), write region (start, quantity,
// byte count) and the register values to be written.
func MarshalReadWriteMultipleRequest(read *SixteenBitAccess, write *SixteenBitAccess) []byte {
	values := write.Values()
	out := make([]byte, 0, 9+2*len(values))
	out = append(out, asUint16(read.StartAddress)...)
	out = append(out, asUint16(read.Quantity)...)
	out = append(out, asUint16(write.StartAddress)...)
	out = append(out, asUint16(write.Quantity)...)
	out = append(out, uint8(2*len(values)))
	for _, v := range values {
		out = append(out, asUint16(v)...)
	}
	return out
}

// UnmarshalReadWriteMultipleRequest parses a function-0x17 request
// payload into separate read and write access objects.
func UnmarshalReadWriteMultipleRequest(payload []byte) (read *SixteenBitAccess, write *SixteenBitAccess, ok bool) {
	if len(payload) < 9 {
		return nil, nil, false
	}
	rStart := binary.BigEndian.Uint16(payload[0:2])
	rQty := binary.BigEndian.Uint16(payload[2:4])
	wStart := binary.BigEndian.Uint16(payload[4:6])
	wQty := binary.BigEndian.Uint16(payload[6:8])
	count := int(payload[8])
	if count != int(wQty)*2 || len(payload)-9 != count {
		return nil, nil, false
	}

	read = NewSixteenBitAccess(rStart, rQty)
	write = NewSixteenBitAccess(wStart, wQty)
	for i := 0; i < int(wQty); i++ {
		write.SetValue(wStart+uint16(i), binary.BigEndian.Uint16(payload[9+2*i:11+2*i]))
	}
	return read, write, true
}
