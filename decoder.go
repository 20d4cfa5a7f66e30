package modbus

import (
	"encoding/binary"
	"encoding/hex"
)

// decodeStatus is the verdict of a single decode attempt against the
// bytes currently buffered.
type decodeStatus int

const (
	decodeNeedMoreData decodeStatus = iota
	decodeSizeOK
	decodeFailed
)

// DecodedFrame pairs a fully-decoded Adu with the terminal Error the
// decoder attached to it: NoError, StorageParityError (CRC/LRC mismatch)
// or the exception code carried by an exception response.
type DecodedFrame struct {
	Adu *Adu
	Err Error
}

const (
	maxRTUFrameLength   = 256
	maxASCIIFrameLength = 513 // 256 raw bytes, hex-encoded, plus ':' (CRLF not counted)
	mbapHeaderLength    = 6
)

// Decoder turns a stream of wire bytes into DecodedFrames. It is
// resumable: Feed may be called repeatedly as bytes trickle in off a
// transport, and a partial frame is held internally across calls rather
// than being re-requested by the caller.
type Decoder struct {
	mode    TransferMode
	oracles *oracleTable
	buf     []byte
}

// NewDecoder builds a decoder for the given transfer mode, consulting
// oracles to size request/response payloads that aren't otherwise framed
// (MBAP carries its own length prefix and consults oracles only to flag
// an unknown function code).
func NewDecoder(mode TransferMode, oracles *oracleTable) *Decoder {
	return &Decoder{mode: mode, oracles: oracles}
}

// NewClientDecoder builds a decoder for frames arriving at a client,
// i.e. server responses.
func NewClientDecoder(mode TransferMode) *Decoder {
	return NewDecoder(mode, clientOracles)
}

// NewServerDecoder builds a decoder for frames arriving at a server,
// i.e. client requests.
func NewServerDecoder(mode TransferMode) *Decoder {
	return NewDecoder(mode, serverOracles)
}

// Feed appends data to the decoder's internal buffer and extracts every
// complete frame it can. Frames are returned in wire order; any trailing
// partial frame remains buffered for the next call.
func (d *Decoder) Feed(data []byte) []DecodedFrame {
	d.buf = append(d.buf, data...)

	var out []DecodedFrame

	for {
		var status decodeStatus
		var consumed int
		var frame DecodedFrame

		switch d.mode {
		case TransferModeRTU:
			status, consumed, frame = decodeRTUFrame(d.buf, d.oracles)
		case TransferModeASCII:
			status, consumed, frame = decodeASCIIFrame(d.buf, d.oracles)
		case TransferModeMBAP:
			status, consumed, frame = decodeMBAPFrame(d.buf, d.oracles)
		}

		switch status {
		case decodeNeedMoreData:
			return out
		case decodeSizeOK:
			d.buf = d.buf[consumed:]
			out = append(out, frame)
		case decodeFailed:
			// drop one byte and try to resynchronize on the next
			// plausible frame start, rather than stalling forever
			// on unparsable garbage.
			if len(d.buf) == 0 {
				return out
			}
			d.buf = d.buf[1:]
		}
	}
}

// Reset discards any partial frame held in the buffer, used when a
// session gives up on an in-flight request (timeout, disconnect).
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// decodeRTUFrame runs the ServerAddress -> FunctionCode -> Data -> Crc0 ->
// Crc1 -> End state machine over the whole buffer available so far
// rather than byte-at-a-time, since both framings are equivalent once
// the buffer is allowed to be re-scanned cheaply on every Feed call.
func decodeRTUFrame(buf []byte, oracles *oracleTable) (decodeStatus, int, DecodedFrame) {
	if len(buf) < 2 {
		return decodeNeedMoreData, 0, DecodedFrame{}
	}

	addr := buf[0]
	fc := FunctionCode(buf[1])

	var oracle payloadOracle
	unknownFunction := false

	if fc.exceptionBitSet() {
		oracle = exceptionOracle
	} else if o, ok := oracles.lookup(fc); ok {
		oracle = o
	} else {
		oracle = fixedOracle(0)
		unknownFunction = true
	}

	result, n := oracle(buf[2:])
	switch result {
	case oracleNeedMoreData:
		return decodeNeedMoreData, 0, DecodedFrame{}
	case oracleFailed:
		return decodeFailed, 0, DecodedFrame{}
	}

	total := 2 + n + 2 // + crc lo/hi
	if total > maxRTUFrameLength {
		return decodeFailed, 0, DecodedFrame{}
	}
	if len(buf) < total {
		return decodeNeedMoreData, 0, DecodedFrame{}
	}

	var c crc
	c.init()
	c.add(buf[0 : 2+n])

	lastErr := NoError
	switch {
	case unknownFunction:
		lastErr = errorFromException(ExIllegalFunction)
	case !c.isEqual(buf[2+n], buf[2+n+1]):
		lastErr = StorageParityError
	case fc.exceptionBitSet():
		lastErr = errorFromException(Exception(buf[2]))
	}

	adu := &Adu{
		ServerAddress: addr,
		FunctionCode:  fc,
		Payload:       append([]byte(nil), buf[2:2+n]...),
	}

	return decodeSizeOK, total, DecodedFrame{Adu: adu, Err: lastErr}
}

// decodeMBAPFrame runs the MBAP -> ServerAddress -> FunctionCode -> Data
// -> End state machine. The length field read out of the MBAP header
// pins the frame boundary directly, so the oracle table is only
// consulted to flag an unrecognized function code.
func decodeMBAPFrame(buf []byte, oracles *oracleTable) (decodeStatus, int, DecodedFrame) {
	if len(buf) < mbapHeaderLength {
		return decodeNeedMoreData, 0, DecodedFrame{}
	}

	txnID := binary.BigEndian.Uint16(buf[0:2])
	protoID := binary.BigEndian.Uint16(buf[2:4])
	length := int(binary.BigEndian.Uint16(buf[4:6]))

	if length < 2 {
		return decodeFailed, 0, DecodedFrame{}
	}

	total := mbapHeaderLength + length
	if len(buf) < total {
		return decodeNeedMoreData, 0, DecodedFrame{}
	}
	if protoID != 0x0000 {
		return decodeFailed, 0, DecodedFrame{}
	}

	unitID := buf[mbapHeaderLength]
	fc := FunctionCode(buf[mbapHeaderLength+1])
	payload := buf[mbapHeaderLength+2 : total]

	lastErr := NoError
	switch {
	case fc.exceptionBitSet():
		if len(payload) != 1 {
			return decodeFailed, 0, DecodedFrame{}
		}
		lastErr = errorFromException(Exception(payload[0]))
	default:
		if _, ok := oracles.lookup(fc); !ok {
			lastErr = errorFromException(ExIllegalFunction)
		}
	}

	adu := &Adu{
		ServerAddress: unitID,
		FunctionCode:  fc,
		Payload:       append([]byte(nil), payload...),
		TransactionID: txnID,
	}

	return decodeSizeOK, total, DecodedFrame{Adu: adu, Err: lastErr}
}

// decodeASCIIFrame reads up to CRLF, hex-decodes the interior, validates
// the LRC, then proceeds as RTU without a CRC. The CRLF delimiter pins
// the frame boundary, so (like MBAP) the oracle table plays no role in
// framing here; it exists purely for API symmetry with the RTU/MBAP
// decoders.
func decodeASCIIFrame(buf []byte, _ *oracleTable) (decodeStatus, int, DecodedFrame) {
	if len(buf) == 0 {
		return decodeNeedMoreData, 0, DecodedFrame{}
	}
	if buf[0] != ':' {
		return decodeFailed, 0, DecodedFrame{}
	}

	idx := indexCRLF(buf)
	if idx < 0 {
		if len(buf) > maxASCIIFrameLength {
			return decodeFailed, 0, DecodedFrame{}
		}
		return decodeNeedMoreData, 0, DecodedFrame{}
	}

	hexPart := buf[1:idx]
	total := idx + 2

	if len(hexPart) < 6 || len(hexPart)%2 != 0 {
		return decodeFailed, 0, DecodedFrame{}
	}

	raw := make([]byte, len(hexPart)/2)
	if _, err := hex.Decode(raw, hexPart); err != nil {
		return decodeFailed, 0, DecodedFrame{}
	}

	addr := raw[0]
	fc := FunctionCode(raw[1])
	payload := raw[2 : len(raw)-1]
	lrcByte := raw[len(raw)-1]

	var l lrc
	l.init()
	l.add(raw[:len(raw)-1])

	lastErr := NoError
	switch {
	case !l.isEqual(lrcByte):
		lastErr = StorageParityError
	case fc.exceptionBitSet():
		if len(payload) != 1 {
			return decodeFailed, 0, DecodedFrame{}
		}
		lastErr = errorFromException(Exception(payload[0]))
	}

	adu := &Adu{
		ServerAddress: addr,
		FunctionCode:  fc,
		Payload:       append([]byte(nil), payload...),
	}

	return decodeSizeOK, total, DecodedFrame{Adu: adu, Err: lastErr}
}

// indexCRLF returns the index of the first "\r\n" in buf, or -1.
func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}
