package mbserver

import (
	"testing"

	"github.com/paopaol/gomodbus"
)

func newTestServer(t *testing.T) (*ModbusServer, *DataStore) {
	t.Helper()
	store := NewDataStore()
	store.HandleCoils(0, 16, nil, nil)
	store.HandleDiscreteInputs(0, 16)
	store.HandleHoldingRegisters(0, 16, nil, nil)
	store.HandleInputRegisters(0, 16)

	ms, err := New(NewDataStoreHandler(store))
	if err != nil {
		t.Fatalf("unexpected error building server: %v", err)
	}
	return ms, store
}

func TestHandleReadHoldingRegisters(t *testing.T) {
	ms, store := newTestServer(t)
	store.SetHoldingRegisters(0, []uint16{0x1111, 0x2222})

	req := &modbus.Adu{
		ServerAddress: 1,
		FunctionCode:  modbus.FcReadHoldingRegisters,
		Payload:       modbus.NewSixteenBitAccess(0, 2).MarshalReadRequest(),
	}

	res, err := ms.handle(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	access := modbus.NewSixteenBitAccess(0, 2)
	if !access.UnmarshalReadResponse(res.Payload) {
		t.Fatal("failed to unmarshal response payload")
	}
	if access.Value(0) != 0x1111 || access.Value(1) != 0x2222 {
		t.Errorf("unexpected register values: %v", access.Values())
	}
}

func TestHandleWriteSingleCoil(t *testing.T) {
	ms, store := newTestServer(t)

	single := modbus.NewSingleBitAccess(3, 1)
	single.SetBit(3, modbus.On)

	req := &modbus.Adu{
		ServerAddress: 1,
		FunctionCode:  modbus.FcWriteSingleCoil,
		Payload:       single.MarshalSingleWriteRequest(),
	}

	if _, err := ms.handle(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	readReq := modbus.NewSingleBitAccess(3, 1)
	res, err := NewDataStoreHandler(store).HandleCoils(readReq, false)
	if err != nil {
		t.Fatalf("unexpected error reading back the coil: %v", err)
	}
	if res.Bit(3) != modbus.On {
		t.Errorf("expected the coil to have been set, got %v", res.Bit(3))
	}
}

func TestHandleUnknownFunctionCode(t *testing.T) {
	ms, _ := newTestServer(t)

	req := &modbus.Adu{ServerAddress: 1, FunctionCode: modbus.FunctionCode(0x63)}
	_, err := ms.handle(req)
	if err == nil {
		t.Fatal("expected an error for an unsupported function code")
	}
	if ex, ok := err.(modbus.Error).Exception(); !ok || ex != modbus.ExIllegalFunction {
		t.Errorf("expected ExIllegalFunction, got %v", err)
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	ms, _ := newTestServer(t)

	req := &modbus.Adu{ServerAddress: 1, FunctionCode: modbus.FcReadCoils, Payload: []byte{0x00}}
	_, err := ms.handle(req)
	if ex, ok := err.(modbus.Error).Exception(); !ok || ex != modbus.ExIllegalDataValue {
		t.Errorf("expected ExIllegalDataValue, got %v", err)
	}
}

func TestExceptionForWrapsHandlerError(t *testing.T) {
	ms, _ := newTestServer(t)

	req := &modbus.Adu{ServerAddress: 7, FunctionCode: modbus.FcReadCoils}
	out := ms.exceptionFor(req, modbus.Error(modbus.ExIllegalDataAddress))

	if !out.IsException() {
		t.Fatal("expected the response to carry the exception bit")
	}
	if out.ExceptionCode() != modbus.ExIllegalDataAddress {
		t.Errorf("expected ExIllegalDataAddress, got %v", out.ExceptionCode())
	}
	if out.ServerAddress != 7 {
		t.Errorf("expected the exception response to echo the server address, got %v", out.ServerAddress)
	}
}

type plainError string

func (e plainError) Error() string { return string(e) }

func TestExceptionForDefaultsUnknownErrors(t *testing.T) {
	ms, _ := newTestServer(t)

	req := &modbus.Adu{ServerAddress: 1, FunctionCode: modbus.FcReadCoils}
	out := ms.exceptionFor(req, plainError("storage backend unreachable"))
	if out.ExceptionCode() != modbus.ExServerDeviceFailure {
		t.Errorf("expected ExServerDeviceFailure for a non-modbus.Error, got %v", out.ExceptionCode())
	}
}

func TestDummyHandlerRejectsEverything(t *testing.T) {
	ms, err := New(&DummyHandler{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &modbus.Adu{
		ServerAddress: 1,
		FunctionCode:  modbus.FcReadCoils,
		Payload:       modbus.NewSingleBitAccess(0, 1).MarshalReadRequest(),
	}
	_, err = ms.handle(req)
	if ex, ok := err.(modbus.Error).Exception(); !ok || ex != modbus.ExIllegalFunction {
		t.Errorf("expected ExIllegalFunction from DummyHandler, got %v", err)
	}
}
