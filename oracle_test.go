package modbus

import (
	"testing"
)

func TestFixedOracle(t *testing.T) {
	var o payloadOracle
	var res oracleResult
	var n int

	o = fixedOracle(4)

	res, n = o([]byte{0x01, 0x02})
	if res != oracleNeedMoreData {
		t.Errorf("expected oracleNeedMoreData, saw %v", res)
	}

	res, n = o([]byte{0x01, 0x02, 0x03, 0x04})
	if res != oracleSizeOK || n != 4 {
		t.Errorf("expected {oracleSizeOK, 4}, saw {%v, %v}", res, n)
	}

	// extra trailing bytes are fine: the oracle only reports how much of
	// the buffer this frame needs, the decoder trims the rest
	res, n = o([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	if res != oracleSizeOK || n != 4 {
		t.Errorf("expected {oracleSizeOK, 4}, saw {%v, %v}", res, n)
	}
}

func TestLengthPrefixedOracle(t *testing.T) {
	var o payloadOracle
	var res oracleResult
	var n int

	o = lengthPrefixedOracle(0)

	res, _ = o([]byte{})
	if res != oracleNeedMoreData {
		t.Errorf("expected oracleNeedMoreData on an empty buffer, saw %v", res)
	}

	// count byte says 2 more bytes follow
	res, n = o([]byte{0x02, 0x11})
	if res != oracleNeedMoreData {
		t.Errorf("expected oracleNeedMoreData, saw %v", res)
	}

	res, n = o([]byte{0x02, 0x11, 0x22})
	if res != oracleSizeOK || n != 3 {
		t.Errorf("expected {oracleSizeOK, 3}, saw {%v, %v}", res, n)
	}
}

func TestLengthPrefixedOracleWithOffset(t *testing.T) {
	var o payloadOracle
	var res oracleResult
	var n int

	// WriteMultipleCoils request shape: 4 header bytes, then a count byte
	o = lengthPrefixedOracle(4)

	res, _ = o([]byte{0x00, 0x01, 0x00, 0x02})
	if res != oracleNeedMoreData {
		t.Errorf("expected oracleNeedMoreData, saw %v", res)
	}

	res, n = o([]byte{0x00, 0x01, 0x00, 0x02, 0x01, 0xff})
	if res != oracleSizeOK || n != 6 {
		t.Errorf("expected {oracleSizeOK, 6}, saw {%v, %v}", res, n)
	}
}

func TestOracleTableLookup(t *testing.T) {
	var o payloadOracle
	var ok bool

	o, ok = clientOracles.lookup(FcReadCoils)
	if !ok || o == nil {
		t.Error("expected clientOracles to know about FcReadCoils")
	}

	_, ok = clientOracles.lookup(FunctionCode(0x7f))
	if ok {
		t.Error("expected clientOracles to have no entry for an unsupported function code")
	}

	o, ok = serverOracles.lookup(FcWriteMultipleRegisters)
	if !ok || o == nil {
		t.Error("expected serverOracles to know about FcWriteMultipleRegisters")
	}
}

func TestExceptionOracle(t *testing.T) {
	res, n := exceptionOracle([]byte{0x02})
	if res != oracleSizeOK || n != 1 {
		t.Errorf("expected {oracleSizeOK, 1}, saw {%v, %v}", res, n)
	}

	res, _ = exceptionOracle([]byte{})
	if res != oracleNeedMoreData {
		t.Errorf("expected oracleNeedMoreData, saw %v", res)
	}
}
