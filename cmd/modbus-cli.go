package main

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	modbus "github.com/paopaol/gomodbus"
	"github.com/paopaol/gomodbus/internal/logging"
)

func main() {
	var err error
	var help bool
	var client *modbus.Client
	var config *modbus.Configuration
	var target string
	var caPath string   // path to TLS CA/server certificate
	var certPath string // path to TLS client certificate
	var keyPath string  // path to TLS client key
	var clientKeyPair tls.Certificate
	var speed int
	var dataBits int
	var parity string
	var stopBits int
	var endianness string
	var wordOrder string
	var timeout string
	var opts []modbus.ClientOption
	var unitID uint
	var showDiag bool
	var dump bool
	var runList []operation

	flag.StringVar(&target, "target", "", "target device to connect to (e.g. modbus.tcp://somehost:502) [required]")
	flag.IntVar(&speed, "speed", 19200, "serial bus speed in bps (rtu)")
	flag.IntVar(&dataBits, "data-bits", 8, "number of bits per character on the serial bus (rtu)")
	flag.StringVar(&parity, "parity", "none", "parity bit <none|even|odd> on the serial bus (rtu)")
	flag.IntVar(&stopBits, "stop-bits", 1, "number of stop bits <1|2> on the serial bus (rtu)")
	flag.StringVar(&timeout, "timeout", "3s", "per-request timeout")
	flag.StringVar(&endianness, "endianness", "big", "register endianness <little|big>")
	flag.StringVar(&wordOrder, "word-order", "highfirst", "word ordering for 32-bit registers <highfirst|hf|lowfirst|lf>")
	flag.UintVar(&unitID, "unit-id", 1, "unit/slave id to use")
	flag.StringVar(&certPath, "cert", "", "path to TLS client certificate")
	flag.StringVar(&keyPath, "key", "", "path to TLS client key")
	flag.StringVar(&caPath, "ca", "", "path to TLS CA/server certificate")
	flag.BoolVar(&showDiag, "diagnosis", false, "print the session's runtime diagnosis counters before exiting")
	flag.BoolVar(&dump, "dump", false, "log the hex of every sent/received frame")
	flag.BoolVar(&help, "help", false, "show a wall-of-text help message")
	flag.Parse()

	if help {
		displayHelp()
		os.Exit(0)
	}

	if target == "" {
		fmt.Printf("no target specified, please use --target\n")
		os.Exit(1)
	}

	config = &modbus.Configuration{
		URL:      target,
		Speed:    speed,
		DataBits: dataBits,
		StopBits: stopBits,
	}

	switch parity {
	case "none":
		config.Parity = modbus.ParityNone
	case "odd":
		config.Parity = modbus.ParityOdd
	case "even":
		config.Parity = modbus.ParityEven
	default:
		fmt.Printf("unknown parity setting '%s' (should be one of none, odd or even)\n", parity)
		os.Exit(1)
	}

	config.Timeout, err = time.ParseDuration(timeout)
	if err != nil {
		fmt.Printf("failed to parse timeout setting '%s': %v\n", timeout, err)
		os.Exit(1)
	}

	switch endianness {
	case "big":
		opts = append(opts, modbus.WithEndianness(modbus.BigEndian))
	case "little":
		opts = append(opts, modbus.WithEndianness(modbus.LittleEndian))
	default:
		fmt.Printf("unknown endianness setting '%s' (should either be big or little)\n", endianness)
		os.Exit(1)
	}

	switch wordOrder {
	case "highfirst", "hf":
		opts = append(opts, modbus.WithWordOrder(modbus.HighWordFirst))
	case "lowfirst", "lf":
		opts = append(opts, modbus.WithWordOrder(modbus.LowWordFirst))
	default:
		fmt.Printf("unknown word order setting '%s' (should be one of highfirst, hf, lowfirst, lf)\n", wordOrder)
		os.Exit(1)
	}

	if unitID > 0xff {
		fmt.Printf("unit id '%v' out of range\n", unitID)
		os.Exit(1)
	}
	opts = append(opts, modbus.WithUnitID(uint8(unitID)))

	if dump {
		opts = append(opts, modbus.WithEnableDump(true), modbus.WithLogger(logging.New("modbus-cli", nil)))
	}

	// handle TLS options
	if strings.HasPrefix(target, "modbus.tls://") || strings.HasPrefix(target, "modbus+tls://") {
		if certPath == "" {
			fmt.Print("TLS requested but no client certificate given, please use --cert\n")
			os.Exit(1)
		}
		if keyPath == "" {
			fmt.Print("TLS requested but no client key given, please use --key\n")
			os.Exit(1)
		}
		if caPath == "" {
			fmt.Print("TLS requested but no CA/server cert given, please use --ca\n")
			os.Exit(1)
		}

		clientKeyPair, err = tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			fmt.Printf("failed to load client tls key pair: %v\n", err)
			os.Exit(1)
		}

		rootCAs, err := modbus.LoadCertPool(caPath)
		if err != nil {
			fmt.Printf("failed to load tls CA/server certificate: %v\n", err)
			os.Exit(1)
		}

		config.TLS = &modbus.TLSConfig{
			ClientCert: &clientKeyPair,
			RootCAs:    rootCAs,
		}
	}

	if len(flag.Args()) == 0 {
		fmt.Printf("nothing to do.\n")
		os.Exit(0)
	}

	for _, arg := range flag.Args() {
		o, err := parseOperation(arg)
		if err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(2)
		}
		runList = append(runList, o)
	}

	client, err = modbus.NewClient(config, opts...)
	if err != nil {
		fmt.Printf("failed to create client: %v\n", err)
		os.Exit(1)
	}

	if err := client.Open(); err != nil {
		fmt.Printf("failed to open client: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	for opIdx := 0; opIdx < len(runList); opIdx++ {
		o := &runList[opIdx]
		runOperation(client, o, &opIdx)
	}

	if showDiag {
		printDiagnosis(client.Diagnosis())
	}
}

const (
	opReadCoils uint = iota + 1
	opReadDiscreteInputs
	opReadHoldingRegisters
	opReadInputRegisters
	opReadUint32
	opReadFloat32
	opWriteCoil
	opWriteCoils
	opWriteRegister
	opWriteRegisters
	opSetUnitID
	opSleep
	opRepeat
	opScan
	opPing
)

type operation struct {
	op       uint
	addr     uint16
	quantity uint16
	coil     bool
	coils    []bool
	value    uint16
	values   []uint16
	unitID   uint8
	duration time.Duration
	scanKind string
}

func parseOperation(arg string) (operation, error) {
	var o operation
	var err error

	fields := strings.Split(arg, ":")
	cmd := fields[0]

	switch cmd {
	case "rc", "readCoil", "readCoils", "rdi", "readDiscreteInput", "readDiscreteInputs":
		if len(fields) != 2 {
			return o, fmt.Errorf("need exactly 1 argument after %s, got %v", cmd, len(fields)-1)
		}
		if cmd == "rc" || cmd == "readCoil" || cmd == "readCoils" {
			o.op = opReadCoils
		} else {
			o.op = opReadDiscreteInputs
		}
		o.addr, o.quantity, err = parseAddressAndQuantity(fields[1])

	case "rh", "readHoldingRegister", "readHoldingRegisters", "ri", "readInputRegister", "readInputRegisters":
		if len(fields) != 3 {
			return o, fmt.Errorf("need exactly 2 arguments after %s, got %v", cmd, len(fields)-1)
		}
		isHolding := cmd == "rh" || cmd == "readHoldingRegister" || cmd == "readHoldingRegisters"
		switch fields[1] {
		case "uint16", "int16":
			if isHolding {
				o.op = opReadHoldingRegisters
			} else {
				o.op = opReadInputRegisters
			}
		case "uint32", "int32":
			o.op = opReadUint32
		case "float32":
			o.op = opReadFloat32
		default:
			return o, fmt.Errorf("unknown register type '%v' (should be one of uint16, int16, uint32, int32, float32)", fields[1])
		}
		o.addr, o.quantity, err = parseAddressAndQuantity(fields[2])

	case "wc", "writeCoil":
		if len(fields) != 3 {
			return o, fmt.Errorf("need exactly 2 arguments after writeCoil, got %v", len(fields)-1)
		}
		o.op = opWriteCoil
		if o.addr, err = parseUint16(fields[1]); err != nil {
			return o, fmt.Errorf("failed to parse address ('%v'): %w", fields[1], err)
		}
		switch fields[2] {
		case "true":
			o.coil = true
		case "false":
			o.coil = false
		default:
			return o, fmt.Errorf("failed to parse coil value '%v' (should be true or false)", fields[2])
		}

	case "wcs", "writeCoils":
		if len(fields) != 3 {
			return o, fmt.Errorf("need exactly 2 arguments after writeCoils, got %v", len(fields)-1)
		}
		o.op = opWriteCoils
		if o.addr, err = parseUint16(fields[1]); err != nil {
			return o, fmt.Errorf("failed to parse address ('%v'): %w", fields[1], err)
		}
		for _, c := range strings.Split(fields[2], ",") {
			switch c {
			case "true", "1":
				o.coils = append(o.coils, true)
			case "false", "0":
				o.coils = append(o.coils, false)
			default:
				return o, fmt.Errorf("failed to parse coil value '%v'", c)
			}
		}

	case "wr", "writeRegister":
		if len(fields) != 4 {
			return o, fmt.Errorf("need exactly 3 arguments after writeRegister, got %v", len(fields)-1)
		}
		o.op = opWriteRegister
		if o.addr, err = parseUint16(fields[2]); err != nil {
			return o, fmt.Errorf("failed to parse address ('%v'): %w", fields[2], err)
		}
		if o.value, err = parseUint16(fields[3]); err != nil {
			return o, fmt.Errorf("failed to parse '%s' as %s: %w", fields[3], fields[1], err)
		}

	case "sleep":
		if len(fields) != 2 {
			return o, fmt.Errorf("need exactly 1 argument after sleep, got %v", len(fields)-1)
		}
		o.op = opSleep
		o.duration, err = time.ParseDuration(fields[1])

	case "suid", "setUnitId", "sid":
		if len(fields) != 2 {
			return o, fmt.Errorf("need exactly 1 argument after setUnitId, got %v", len(fields)-1)
		}
		o.op = opSetUnitID
		var id uint64
		id, err = strconv.ParseUint(fields[1], 0, 8)
		o.unitID = uint8(id)

	case "repeat":
		o.op = opRepeat

	case "scan":
		if len(fields) != 2 {
			return o, fmt.Errorf("need exactly 1 argument after scan, got %v", len(fields)-1)
		}
		o.op = opScan
		o.scanKind = fields[1]

	case "ping":
		if len(fields) < 2 || len(fields) > 3 {
			return o, fmt.Errorf("need 1 or 2 arguments after ping, got %v", len(fields)-1)
		}
		o.op = opPing
		if o.quantity, err = parseUint16(fields[1]); err != nil {
			return o, fmt.Errorf("failed to parse ping count ('%v'): %w", fields[1], err)
		}
		if o.quantity == 0 {
			return o, errors.New("illegal ping count value (must be >= 1)")
		}
		if len(fields) == 3 {
			o.duration, err = time.ParseDuration(fields[2])
		}

	default:
		return o, fmt.Errorf("unsupported command '%v'", cmd)
	}

	return o, err
}

func runOperation(client *modbus.Client, o *operation, opIdx *int) {
	var err error

	switch o.op {
	case opReadCoils:
		var res []bool
		res, err = client.ReadCoils(o.addr, o.quantity+1)
		printBools(o.addr, res, err, "coils")

	case opReadDiscreteInputs:
		var res []bool
		res, err = client.ReadDiscreteInputs(o.addr, o.quantity+1)
		printBools(o.addr, res, err, "discrete inputs")

	case opReadHoldingRegisters:
		var res []uint16
		res, err = client.ReadHoldingRegisters(o.addr, o.quantity+1)
		printRegisters16(o.addr, res, err)

	case opReadInputRegisters:
		var res []uint16
		res, err = client.ReadInputRegisters(o.addr, o.quantity+1)
		printRegisters16(o.addr, res, err)

	case opReadUint32:
		var res []uint32
		res, err = client.ReadUint32s(o.addr, o.quantity+1)
		if err != nil {
			fmt.Printf("failed to read holding registers: %v\n", err)
			break
		}
		for i, v := range res {
			fmt.Printf("0x%04x : 0x%08x\t%v\n", o.addr+uint16(i)*2, v, v)
		}

	case opReadFloat32:
		var res []float32
		res, err = client.ReadFloat32s(o.addr, o.quantity+1)
		if err != nil {
			fmt.Printf("failed to read holding registers: %v\n", err)
			break
		}
		for i, v := range res {
			fmt.Printf("0x%04x : %f\n", o.addr+uint16(i)*2, v)
		}

	case opWriteCoil:
		if err = client.WriteCoil(o.addr, o.coil); err != nil {
			fmt.Printf("failed to write %v at coil address 0x%04x: %v\n", o.coil, o.addr, err)
		} else {
			fmt.Printf("wrote %v at coil address 0x%04x\n", o.coil, o.addr)
		}

	case opWriteCoils:
		if err = client.WriteCoils(o.addr, o.coils); err != nil {
			fmt.Printf("failed to write coils at address 0x%04x: %v\n", o.addr, err)
		} else {
			fmt.Printf("wrote %v coils at address 0x%04x\n", len(o.coils), o.addr)
		}

	case opWriteRegister:
		if err = client.WriteRegister(o.addr, o.value); err != nil {
			fmt.Printf("failed to write %v at register address 0x%04x: %v\n", o.value, o.addr, err)
		} else {
			fmt.Printf("wrote %v at register address 0x%04x\n", o.value, o.addr)
		}

	case opSleep:
		time.Sleep(o.duration)

	case opSetUnitID:
		client.SetUnitID(o.unitID)

	case opRepeat:
		*opIdx = -1

	case opScan:
		performScan(client, o.scanKind)

	case opPing:
		performPing(client, o.quantity, o.duration)

	default:
		fmt.Printf("unknown operation %v\n", o.op)
		os.Exit(100)
	}
}

func printBools(addr uint16, res []bool, err error, what string) {
	if err != nil {
		fmt.Printf("failed to read %s: %v\n", what, err)
		return
	}
	for i, v := range res {
		fmt.Printf("0x%04x\t%-5v : %v\n", addr+uint16(i), addr+uint16(i), v)
	}
}

func printRegisters16(addr uint16, res []uint16, err error) {
	if err != nil {
		fmt.Printf("failed to read registers: %v\n", err)
		return
	}
	for i, v := range res {
		fmt.Printf("0x%04x\t%-5v : 0x%04x\t%v\n", addr+uint16(i), addr+uint16(i), v, v)
	}
}

func parseUint16(in string) (uint16, error) {
	val, err := strconv.ParseUint(in, 0, 16)
	return uint16(val), err
}

func parseAddressAndQuantity(in string) (addr uint16, quantity uint16, err error) {
	split := strings.Split(in, "+")

	switch len(split) {
	case 1:
		addr, err = parseUint16(in)
	case 2:
		if addr, err = parseUint16(split[0]); err != nil {
			return
		}
		quantity, err = parseUint16(split[1])
	default:
		err = errors.New("illegal format")
	}

	return
}

func exceptionOf(err error) (modbus.Exception, bool) {
	me, ok := err.(modbus.Error)
	if !ok {
		return 0, false
	}
	return me.Exception()
}

func performScan(client *modbus.Client, kind string) {
	switch kind {
	case "c", "coils":
		scanBools(client, true)
	case "di", "discreteInputs":
		scanBools(client, false)
	case "h", "hr", "holding", "holdingRegisters":
		scanRegisters(client, true)
	case "i", "ir", "input", "inputRegisters":
		scanRegisters(client, false)
	case "s", "sid":
		scanUnitID(client)
	default:
		fmt.Printf("unknown scan/register type '%s' (valid options <coils|di|hr|ir|s>)\n", kind)
	}
}

func scanBools(client *modbus.Client, isCoil bool) {
	var count uint
	what := "discrete input"
	if isCoil {
		what = "coil"
	}

	fmt.Printf("starting %s scan\n", what)
	for addr := uint32(0); addr <= 0xffff; addr++ {
		var res []bool
		var err error
		if isCoil {
			res, err = client.ReadCoils(uint16(addr), 1)
		} else {
			res, err = client.ReadDiscreteInputs(uint16(addr), 1)
		}

		if ex, ok := exceptionOf(err); ok && (ex == modbus.ExIllegalDataAddress || ex == modbus.ExIllegalFunction) {
			continue
		} else if err != nil {
			fmt.Printf("failed to read %s at address 0x%04x: %v\n", what, addr, err)
		} else {
			fmt.Printf("0x%04x\t%-5v : %v\n", addr, addr, res[0])
			count++
		}
	}
	fmt.Printf("found %v %ss\n", count, what)
}

func scanRegisters(client *modbus.Client, isHolding bool) {
	var count uint
	what := "input register"
	if isHolding {
		what = "holding register"
	}

	fmt.Printf("starting %s scan\n", what)
	for addr := uint32(0); addr <= 0xffff; addr++ {
		var res []uint16
		var err error
		if isHolding {
			res, err = client.ReadHoldingRegisters(uint16(addr), 1)
		} else {
			res, err = client.ReadInputRegisters(uint16(addr), 1)
		}

		if ex, ok := exceptionOf(err); ok && (ex == modbus.ExIllegalDataAddress || ex == modbus.ExIllegalFunction) {
			continue
		} else if err != nil {
			fmt.Printf("failed to read %s at address 0x%04x: %v\n", what, addr, err)
		} else {
			fmt.Printf("0x%04x\t%-5v : 0x%04x\t%v\n", addr, addr, res[0], res[0])
			count++
		}
	}
	fmt.Printf("found %v %ss\n", count, what)
}

func scanUnitID(client *modbus.Client) {
	var countOk, countErr, countTimeout uint

	fmt.Println("starting unit id scan")
	for id := uint(0); id <= 0xff; id++ {
		client.SetUnitID(uint8(id))

		_, err := client.ReadInputRegisters(0, 1)
		switch {
		case err == nil:
			fmt.Printf("0x%02x (%3v): ok\n", id, id)
			countOk++
		case err == modbus.Timeout:
			countTimeout++
		default:
			if ex, ok := exceptionOf(err); ok && (ex == modbus.ExIllegalDataAddress || ex == modbus.ExIllegalFunction || ex == modbus.ExIllegalDataValue) {
				fmt.Printf("0x%02x (%3v): ok\n", id, id)
				countOk++
			} else {
				fmt.Printf("0x%02x (%3v): %v\n", id, id, err)
				countErr++
			}
		}
	}

	fmt.Printf("found %v devices (%v errors, %v timeouts)\n", countOk, countErr, countTimeout)
}

func performPing(client *modbus.Client, count uint16, interval time.Duration) {
	var okCount, timeoutCount, otherErrCount uint
	var minRTT, maxRTT, avgRTT time.Duration

	fmt.Printf("ping: sending %v requests...\n", count)
	startTs := time.Now()

	for run := uint16(0); run < count; run++ {
		ts := time.Now()
		_, err := client.ReadHoldingRegisters(0x0000, 1)
		rtt := time.Since(ts)
		avgRTT += rtt

		if run == 0 || rtt < minRTT {
			minRTT = rtt
		}
		if rtt > maxRTT {
			maxRTT = rtt
		}

		_, isException := exceptionOf(err)
		switch {
		case err == nil, isException:
			okCount++
			fmt.Printf("ok: seq = %v, time: %v\n", run+1, rtt.Round(time.Microsecond))
		case err == modbus.Timeout:
			timeoutCount++
			fmt.Printf("timeout: seq = %v, time: %v\n", run+1, rtt.Round(time.Microsecond))
		default:
			otherErrCount++
			fmt.Printf("error (%v): seq = %v, time: %v\n", err, run+1, rtt.Round(time.Microsecond))
		}

		if interval > 0 {
			time.Sleep(interval)
		}
	}

	fmt.Printf("--- ping statistics ---\n"+
		"%v queries, %v target replies, %v transmission errors, %v timeouts, time: %v\n",
		count, okCount, otherErrCount, timeoutCount, time.Since(startTs).Round(time.Millisecond))
	fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
		minRTT.Round(time.Microsecond),
		(avgRTT / time.Duration(count)).Round(time.Microsecond),
		maxRTT.Round(time.Microsecond))
}

func printDiagnosis(d *modbus.RuntimeDiagnosis) {
	if d == nil {
		fmt.Println("no diagnosis available")
		return
	}
	fmt.Printf("--- session diagnosis ---\n")
	fmt.Printf("total frames: %v, successful: %v, errors: %v\n",
		d.TotalFrameNumbers(), d.SuccessedFrameNumbers(), d.TotalFrameNumbers()-d.SuccessedFrameNumbers())
}

func displayHelp() {
	flag.CommandLine.SetOutput(os.Stdout)

	fmt.Println(
		`This tool is a modbus command line interface client meant to allow quick and easy
interaction with modbus devices (e.g. for probing or troubleshooting).

Available options:`)
	flag.PrintDefaults()
	fmt.Printf(
		`

Commands must be given as trailing arguments after any options.

Example: modbus-cli --target=modbus.tcp://somehost:502 --timeout=3s rh:uint16:0x100+5 wc:12:true
         Read 6 holding registers at address 0x100 then set the coil at address 12 to true
         on modbus/tcp device somehost port 502, with a timeout of 3s.

Available commands:
* <rc|readCoils>:<addr>[+additional quantity]
  Read coil at address <addr>, plus any additional coils if specified.

* <rdi|readDiscreteInputs>:<addr>[+additional quantity]
  Read discrete input at address <addr>, plus any additional discrete inputs if specified.

* <rh|readHoldingRegisters>:<type>:<addr>[+additional quantity]
  Read holding registers at <addr>, decoded as <type> which is one of
  uint16, int16, uint32, int32, float32. int16 and int32 are read as
  uint16 and uint32 and printed unsigned.

* <ri|readInputRegisters>:<type>:<addr>[+additional quantity]
  Same as above, against input registers for uint16/int16; uint32, int32
  and float32 reads always go to holding registers.

* <wc|writeCoil>:<addr>:<true|false>
  Set the coil at address <addr>.

* <wcs|writeCoils>:<addr>:<v1,v2,...>
  Write a comma-separated run of coil values starting at <addr>.

* <wr|writeRegister>:<type>:<addr>:<value>
  Write a 16-bit register value at <addr>.

* sleep:<duration>
  Pause for <duration>, specified as a golang duration string.

* <setUnitId|suid|sid>:<unit id>
  Switch to unit id (slave id) <unit id> for subsequent requests.

* repeat
  Restart execution of the given commands.

* scan:<type>
  Perform a modbus "scan" of type <type>: one of c/coils, di/discreteInputs,
  hr/holdingRegisters, ir/inputRegisters, s/sid.

* ping:<count>[:interval]
  Executes <count> modbus reads (1 holding register at address 0x0000), then
  prints timing and outcome statistics.

Register endianness and word order:
  --endianness <big|little> (default big) and --word-order <highfirst|lowfirst>
  (default highfirst) control how [u]int32/float32 values spanning two
  consecutive registers are packed.

Supported transports and associated target schemes:
  - Modbus RTU using a local serial device:  modbus.file:///path/to/device
  - Modbus TCP (MBAP):                       modbus.tcp://host:port
  - Modbus TCP over TLS:                     modbus.tls://host:port
  - Modbus TCP over UDP (MBAP over UDP):      modbus.udp://host:port

Pass --diagnosis to print the session's runtime request/error counters
before the tool exits. Pass --dump to log the hex of every sent and
received frame.

Examples:
  $ modbus-cli --target modbus.tcp://10.100.0.10:502 rh:uint32:0x100+5 rc:0+10 wc:3:true
  $ modbus-cli --target modbus.file:///dev/ttyUSB0 --speed 19200 suid:2 rh:uint16:0+7 \
    wr:uint16:0x2:0x0605 suid:3 ri:int16:0+1 sleep:1s repeat
  $ modbus-cli --target modbus.tcp://somehost:502 scan:hr scan:ir scan:di scan:coils
  $ modbus-cli --target modbus.tls://securehost:802 --cert client.cert.pem --key client.key.pem \
    --ca ca.cert.pem rh:uint32:0x3000
`)
}
