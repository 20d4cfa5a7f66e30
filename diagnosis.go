package modbus

import "sync"

// diagnosisEntry counts how many times a particular (functionCode, err)
// pair has been observed for one server address.
type diagnosisEntry struct {
	functionCode FunctionCode
	err          Error
	count        uint64
}

// RuntimeDiagnosis accumulates per-server-address counters over the
// lifetime of a client session: how many frames were exchanged, how many
// completed successfully, and a breakdown of every (function code, error)
// pair observed, so a caller can tell a noisy line from a failing one.
type RuntimeDiagnosis struct {
	mu              sync.Mutex
	perServer       map[uint8][]*diagnosisEntry
	totalFrames     uint64
	successedFrames uint64
}

// NewRuntimeDiagnosis builds an empty diagnosis sink.
func NewRuntimeDiagnosis() *RuntimeDiagnosis {
	return &RuntimeDiagnosis{perServer: make(map[uint8][]*diagnosisEntry)}
}

// Record tallies one completed request/response exchange.
func (d *RuntimeDiagnosis) Record(serverAddr uint8, fc FunctionCode, err Error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalFrames++
	if err == NoError {
		d.successedFrames++
	}

	entries := d.perServer[serverAddr]
	for _, e := range entries {
		if e.functionCode == fc && e.err == err {
			e.count++
			return
		}
	}
	d.perServer[serverAddr] = append(entries, &diagnosisEntry{functionCode: fc, err: err, count: 1})
}

// TotalFrameNumbers returns the total number of request/response
// exchanges recorded so far.
func (d *RuntimeDiagnosis) TotalFrameNumbers() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalFrames
}

// SuccessedFrameNumbers returns the number of exchanges that completed
// with NoError.
func (d *RuntimeDiagnosis) SuccessedFrameNumbers() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.successedFrames
}

// ErrorCount returns how many times (fc, err) was observed for
// serverAddr.
func (d *RuntimeDiagnosis) ErrorCount(serverAddr uint8, fc FunctionCode, err Error) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.perServer[serverAddr] {
		if e.functionCode == fc && e.err == err {
			return e.count
		}
	}
	return 0
}
