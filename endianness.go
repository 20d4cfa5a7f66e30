package modbus

import (
	"encoding/binary"
	"math"
)

// Endianness selects the byte order register values are packed in.
type Endianness int

const (
	BigEndian Endianness = iota
	LittleEndian
)

// WordOrder selects which 16-bit word of a 32/64-bit value comes first
// on the wire, independent of Endianness.
type WordOrder int

const (
	HighWordFirst WordOrder = iota
	LowWordFirst
)

func byteOrderOf(e Endianness) binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func uint16ToBytes(e Endianness, in uint16) []byte {
	out := make([]byte, 2)
	byteOrderOf(e).PutUint16(out, in)
	return out
}

func uint16sToBytes(e Endianness, in []uint16) (out []byte) {
	for _, v := range in {
		out = append(out, uint16ToBytes(e, v)...)
	}
	return
}

func bytesToUint16(e Endianness, in []byte) uint16 {
	return byteOrderOf(e).Uint16(in)
}

func bytesToUint16s(e Endianness, in []byte) (out []uint16) {
	for i := 0; i < len(in); i += 2 {
		out = append(out, bytesToUint16(e, in[i:i+2]))
	}
	return
}

func swapWords32(buf []byte) []byte {
	return []byte{buf[2], buf[3], buf[0], buf[1]}
}

func swapWords64(buf []byte) []byte {
	return []byte{buf[6], buf[7], buf[4], buf[5], buf[2], buf[3], buf[0], buf[1]}
}

func uint32ToBytes(e Endianness, w WordOrder, in uint32) []byte {
	out := make([]byte, 4)
	byteOrderOf(e).PutUint32(out, in)
	if (e == BigEndian && w == LowWordFirst) || (e == LittleEndian && w == HighWordFirst) {
		out = swapWords32(out)
	}
	return out
}

func bytesToUint32(e Endianness, w WordOrder, in []byte) (out []uint32) {
	bo := byteOrderOf(e)
	for i := 0; i < len(in); i += 4 {
		chunk := in[i : i+4]
		if (e == BigEndian && w == LowWordFirst) || (e == LittleEndian && w == HighWordFirst) {
			chunk = swapWords32(chunk)
		}
		out = append(out, bo.Uint32(chunk))
	}
	return
}

func float32ToBytes(e Endianness, w WordOrder, in float32) []byte {
	return uint32ToBytes(e, w, math.Float32bits(in))
}

func bytesToFloat32(e Endianness, w WordOrder, in []byte) (out []float32) {
	for _, u := range bytesToUint32(e, w, in) {
		out = append(out, math.Float32frombits(u))
	}
	return
}

func uint64ToBytes(e Endianness, w WordOrder, in uint64) []byte {
	out := make([]byte, 8)
	byteOrderOf(e).PutUint64(out, in)
	if (e == BigEndian && w == LowWordFirst) || (e == LittleEndian && w == HighWordFirst) {
		out = swapWords64(out)
	}
	return out
}

func bytesToUint64(e Endianness, w WordOrder, in []byte) (out []uint64) {
	bo := byteOrderOf(e)
	for i := 0; i < len(in); i += 8 {
		chunk := in[i : i+8]
		if (e == BigEndian && w == LowWordFirst) || (e == LittleEndian && w == HighWordFirst) {
			chunk = swapWords64(chunk)
		}
		out = append(out, bo.Uint64(chunk))
	}
	return
}

func float64ToBytes(e Endianness, w WordOrder, in float64) []byte {
	return uint64ToBytes(e, w, math.Float64bits(in))
}

func bytesToFloat64(e Endianness, w WordOrder, in []byte) (out []float64) {
	for _, u := range bytesToUint64(e, w, in) {
		out = append(out, math.Float64frombits(u))
	}
	return
}
