package modbus

import (
	"encoding/hex"
)

// Encode turns adu into the wire bytes for the given transfer mode. txnID
// is only used for TransferModeMBAP; pass adu.TransactionID for a
// response being echoed back, or an incrementing counter for outbound
// client requests.
func Encode(mode TransferMode, adu *Adu, txnID uint16) ([]byte, error) {
	if len(adu.Payload) > maxPDUPayload {
		return nil, ErrPayloadTooLarge
	}

	switch mode {
	case TransferModeRTU:
		return encodeRTU(adu), nil
	case TransferModeMBAP:
		return encodeMBAP(adu, txnID), nil
	case TransferModeASCII:
		return encodeASCII(adu), nil
	default:
		return nil, ErrConfigurationError
	}
}

func encodeRTU(adu *Adu) []byte {
	out := make([]byte, 0, 4+len(adu.Payload))
	out = append(out, adu.ServerAddress, uint8(adu.FunctionCode))
	out = append(out, adu.Payload...)

	var c crc
	c.init()
	c.add(out)
	out = append(out, c.value()...)

	return out
}

func encodeMBAP(adu *Adu, txnID uint16) []byte {
	length := uint16(2 + len(adu.Payload))

	out := make([]byte, 0, 8+len(adu.Payload))
	out = append(out, asUint16(txnID)...)
	out = append(out, 0x00, 0x00) // protocol identifier
	out = append(out, asUint16(length)...)
	out = append(out, adu.ServerAddress, uint8(adu.FunctionCode))
	out = append(out, adu.Payload...)

	return out
}

func encodeASCII(adu *Adu) []byte {
	raw := make([]byte, 0, 2+len(adu.Payload)+1)
	raw = append(raw, adu.ServerAddress, uint8(adu.FunctionCode))
	raw = append(raw, adu.Payload...)

	var l lrc
	l.init()
	l.add(raw)
	raw = append(raw, l.value())

	out := make([]byte, 0, 1+2*len(raw)+2)
	out = append(out, ':')
	hexed := make([]byte, 2*len(raw))
	hex.Encode(hexed, raw)
	out = append(out, upperHex(hexed)...)
	out = append(out, '\r', '\n')

	return out
}

func upperHex(buf []byte) []byte {
	for i, b := range buf {
		if b >= 'a' && b <= 'f' {
			buf[i] = b - ('a' - 'A')
		}
	}
	return buf
}
