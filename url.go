package modbus

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// endpointKind is the transport family selected by a parsed URL.
type endpointKind int

const (
	endpointTCP endpointKind = iota
	endpointUDP
	endpointTLS
	endpointSerial
)

// endpoint is the parsed form of one of the four supported URL schemes:
// modbus.tcp://host:port, modbus.tls://host:port, modbus.udp://host:port
// and modbus.file://device?params, mirroring original_source's
// modbus_url_parser.h.
type endpoint struct {
	kind   endpointKind
	addr   string // host:port for tcp/tls/udp
	serial SerialConfig
}

// parseEndpointURL parses one of the four supported schemes.
func parseEndpointURL(raw string) (*endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("modbus: invalid url %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "modbus.tcp", "modbus+tcp":
		return &endpoint{kind: endpointTCP, addr: defaultPort(u.Host, "502")}, nil
	case "modbus.tls", "modbus+tls":
		return &endpoint{kind: endpointTLS, addr: defaultPort(u.Host, "802")}, nil
	case "modbus.udp", "modbus+udp":
		return &endpoint{kind: endpointUDP, addr: defaultPort(u.Host, "502")}, nil
	case "modbus.file", "modbus+file", "modbus.serial":
		return parseSerialURL(u)
	default:
		return nil, fmt.Errorf("modbus: unsupported url scheme %q", u.Scheme)
	}
}

func defaultPort(host, port string) string {
	if host == "" {
		return host
	}
	if _, _, err := splitHostPort(host); err == nil {
		return host
	}
	return host + ":" + port
}

func splitHostPort(host string) (string, string, error) {
	parts := strings.Split(host, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("no port")
	}
	return parts[0], parts[1], nil
}

// parseSerialURL parses modbus.file:///dev/ttyUSB0?baud=9600&parity=N&databits=8&stopbits=1
func parseSerialURL(u *url.URL) (*endpoint, error) {
	device := u.Path
	if device == "" {
		device = u.Opaque
	}
	if device == "" {
		return nil, fmt.Errorf("modbus: serial url missing device path")
	}

	conf := SerialConfig{
		Device:   device,
		BaudRate: 9600,
		DataBits: 8,
		Parity:   ParityNone,
		StopBits: 1,
	}

	q := u.Query()
	if v := q.Get("baud"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("modbus: invalid baud rate %q", v)
		}
		conf.BaudRate = n
	}
	if v := q.Get("databits"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("modbus: invalid data bits %q", v)
		}
		conf.DataBits = n
	}
	if v := q.Get("stopbits"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("modbus: invalid stop bits %q", v)
		}
		conf.StopBits = n
	}
	if v := strings.ToUpper(q.Get("parity")); v != "" {
		switch v {
		case "N":
			conf.Parity = ParityNone
		case "E":
			conf.Parity = ParityEven
		case "O":
			conf.Parity = ParityOdd
		default:
			return nil, fmt.Errorf("modbus: invalid parity %q", v)
		}
	}

	return &endpoint{kind: endpointSerial, serial: conf}, nil
}
