package modbus

// oracleResult is the verdict a payloadOracle returns after inspecting
// the payload bytes received so far.
type oracleResult int

const (
	oracleNeedMoreData oracleResult = iota
	oracleSizeOK
	oracleFailed
)

// payloadOracle inspects buf (the bytes currently buffered after the
// function code) and decides how many payload bytes this request/response requires in
// total. Two shapes suffice for the nine supported function codes:
// fixed-N, and length-prefixed-at-index-I.
type payloadOracle func(buf []byte) (oracleResult, int)

// fixedOracle requires exactly n payload bytes.
func fixedOracle(n int) payloadOracle {
	return func(buf []byte) (oracleResult, int) {
		if len(buf) < n {
			return oracleNeedMoreData, 0
		}
		return oracleSizeOK, n
	}
}

// lengthPrefixedOracle treats the byte at offset idx as a count; the
// total payload size is idx + 1 + count.
func lengthPrefixedOracle(idx int) payloadOracle {
	return func(buf []byte) (oracleResult, int) {
		if len(buf) <= idx {
			return oracleNeedMoreData, 0
		}
		total := idx + 1 + int(buf[idx])
		if len(buf) < total {
			return oracleNeedMoreData, 0
		}
		return oracleSizeOK, total
	}
}

// exceptionOracle is used whenever the exception bit is set: the payload
// is always exactly 1 byte, the exception code.
var exceptionOracle = fixedOracle(1)

// oracleTable maps a (masked) function code to the oracle that decides
// how many payload bytes a frame of that function code carries. Separate
// tables are needed for the client (response) and server (request)
// directions, since the payload shapes differ by direction (e.g.
// ReadCoils request is 4 fixed bytes; its response is length-prefixed at
// index 0).
type oracleTable [256]payloadOracle

func (t *oracleTable) set(fc FunctionCode, o payloadOracle) {
	t[fc] = o
}

func (t *oracleTable) lookup(fc FunctionCode) (payloadOracle, bool) {
	o := t[fc]
	return o, o != nil
}

// clientOracles decides payload sizes for frames arriving at the client,
// i.e. server *responses*.
var clientOracles = newClientOracleTable()

// serverOracles decides payload sizes for frames arriving at the server,
// i.e. client *requests*.
var serverOracles = newServerOracleTable()

func newClientOracleTable() *oracleTable {
	var t oracleTable

	t.set(FcReadCoils, lengthPrefixedOracle(0))
	t.set(FcReadDiscreteInputs, lengthPrefixedOracle(0))
	t.set(FcReadHoldingRegisters, lengthPrefixedOracle(0))
	t.set(FcReadInputRegisters, lengthPrefixedOracle(0))
	t.set(FcWriteSingleCoil, fixedOracle(4))
	t.set(FcWriteSingleRegister, fixedOracle(4))
	t.set(FcWriteMultipleCoils, fixedOracle(4))
	t.set(FcWriteMultipleRegisters, fixedOracle(4))
	t.set(FcReadWriteMultipleRegisters, lengthPrefixedOracle(0))

	return &t
}

func newServerOracleTable() *oracleTable {
	var t oracleTable

	t.set(FcReadCoils, fixedOracle(4))
	t.set(FcReadDiscreteInputs, fixedOracle(4))
	t.set(FcReadHoldingRegisters, fixedOracle(4))
	t.set(FcReadInputRegisters, fixedOracle(4))
	t.set(FcWriteSingleCoil, fixedOracle(4))
	t.set(FcWriteSingleRegister, fixedOracle(4))
	t.set(FcWriteMultipleCoils, lengthPrefixedOracle(4))
	t.set(FcWriteMultipleRegisters, lengthPrefixedOracle(4))
	t.set(FcReadWriteMultipleRegisters, lengthPrefixedOracle(8))

	return &t
}
