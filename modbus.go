// Package modbus implements the transport-independent half of the Modbus
// protocol stack: the RTU/ASCII/MBAP frame codecs, the single-bit and
// sixteen-bit payload access helpers, the client session engine and the
// reconnectable transport wrapper. The server-side register/coil storage
// model lives in the sibling mbserver package.
package modbus

import (
	"errors"
	"fmt"
)

// FunctionCode identifies the Modbus operation carried by an Adu. For an
// exception response the high bit (0x80) stays set in the FunctionCode
// stored inside the Adu: the decoder keeps the code as received, locally
// built exception responses set the bit, and the encoder writes the code
// as stored. Adu.IsException reports whether the bit is set.
type FunctionCode uint8

const (
	FcReadCoils                  FunctionCode = 0x01
	FcReadDiscreteInputs         FunctionCode = 0x02
	FcReadHoldingRegisters       FunctionCode = 0x03
	FcReadInputRegisters         FunctionCode = 0x04
	FcWriteSingleCoil            FunctionCode = 0x05
	FcWriteSingleRegister        FunctionCode = 0x06
	FcWriteMultipleCoils         FunctionCode = 0x0f
	FcWriteMultipleRegisters     FunctionCode = 0x10
	FcReadWriteMultipleRegisters FunctionCode = 0x17

	exceptionBit FunctionCode = 0x80
)

func (fc FunctionCode) exceptionBitSet() bool {
	return fc&exceptionBit != 0
}

func (fc FunctionCode) maskException() FunctionCode {
	return fc &^ exceptionBit
}

func (fc FunctionCode) withException() FunctionCode {
	return fc | exceptionBit
}

func (fc FunctionCode) String() string {
	switch fc.maskException() {
	case FcReadCoils:
		return "ReadCoils"
	case FcReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FcReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FcReadInputRegisters:
		return "ReadInputRegisters"
	case FcWriteSingleCoil:
		return "WriteSingleCoil"
	case FcWriteSingleRegister:
		return "WriteSingleRegister"
	case FcWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FcWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	case FcReadWriteMultipleRegisters:
		return "ReadWriteMultipleRegisters"
	default:
		return fmt.Sprintf("FunctionCode(0x%02x)", uint8(fc))
	}
}

// Exception is a Modbus exception code (0x01-0x0B), as carried in the
// single payload byte of an exception response.
type Exception uint8

const (
	ExIllegalFunction              Exception = 0x01
	ExIllegalDataAddress           Exception = 0x02
	ExIllegalDataValue             Exception = 0x03
	ExServerDeviceFailure          Exception = 0x04
	ExAcknowledge                  Exception = 0x05
	ExServerDeviceBusy             Exception = 0x06
	ExMemoryParityError            Exception = 0x08
	ExGatewayPathUnavailable       Exception = 0x0a
	ExGatewayTargetFailedToRespond Exception = 0x0b
)

// Error is the unified error type surfaced on a Response: either a
// Modbus protocol exception (0x01-0x0B) or one of the engine-local
// codes synthesized locally (NoError, Timeout, StorageParityError).
type Error uint16

const (
	// NoError means the request completed with a positive response.
	NoError Error = 0x0000
	// Timeout is synthesized after retries are exhausted without a
	// matching response being observed.
	Timeout Error = 0x1000
	// StorageParityError is synthesized when the decoder detects a
	// CRC/LRC mismatch. A frame whose payload size the decoder cannot
	// determine is not reported: it is dropped a byte at a time.
	StorageParityError Error = 0x1001
)

// errorFromException converts a wire exception code to an Error.
func errorFromException(ex Exception) Error {
	return Error(ex)
}

// Exception extracts the Modbus exception code carried by e, if any.
func (e Error) Exception() (Exception, bool) {
	switch e {
	case NoError, Timeout, StorageParityError:
		return 0, false
	default:
		return Exception(e), true
	}
}

func (e Error) Error() string {
	switch e {
	case NoError:
		return "modbus: no error"
	case Timeout:
		return "modbus: request timed out"
	case StorageParityError:
		return "modbus: storage parity error (crc/lrc mismatch)"
	}

	switch Exception(e) {
	case ExIllegalFunction:
		return "modbus: illegal function"
	case ExIllegalDataAddress:
		return "modbus: illegal data address"
	case ExIllegalDataValue:
		return "modbus: illegal data value"
	case ExServerDeviceFailure:
		return "modbus: server device failure"
	case ExAcknowledge:
		return "modbus: request acknowledged"
	case ExServerDeviceBusy:
		return "modbus: server device busy"
	case ExMemoryParityError:
		return "modbus: memory parity error"
	case ExGatewayPathUnavailable:
		return "modbus: gateway path unavailable"
	case ExGatewayTargetFailedToRespond:
		return "modbus: gateway target device failed to respond"
	default:
		return fmt.Sprintf("modbus: unsupported exception code (0x%02x)", uint16(e))
	}
}

// sentinel errors surfaced by the engine outside of the Response.Error
// channel: configuration mistakes, local decode failures and transport
// plumbing errors that never reach the wire.
var (
	ErrConfigurationError       = errors.New("modbus: configuration error")
	ErrTransportIsAlreadyOpen   = errors.New("modbus: transport is already open")
	ErrTransportIsAlreadyClosed = errors.New("modbus: transport is already closed")
	ErrTransportClosed          = errors.New("modbus: transport is closed")
	ErrBadCRC                   = errors.New("modbus: bad crc")
	ErrBadLRC                   = errors.New("modbus: bad lrc")
	ErrShortFrame               = errors.New("modbus: short frame")
	ErrProtocolError            = errors.New("modbus: protocol error")
	ErrUnknownProtocolID        = errors.New("modbus: unknown protocol identifier")
	ErrUnexpectedParameters     = errors.New("modbus: unexpected parameters")
	ErrPayloadTooLarge          = errors.New("modbus: payload exceeds the 253 byte pdu limit")
)

// maxPDUPayload is the payload size limit, 253 bytes: the size of the
// largest PDU, i.e. the largest RTU ADU (256 bytes) minus the 1 byte
// unit id and 2 byte CRC that frame it.
const maxPDUPayload = 253
