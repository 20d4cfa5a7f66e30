package modbus

import (
	"context"
	"fmt"
	"net"
	"time"
)

// tcpDevice adapts a dialed TCP net.Conn to AbstractIoDevice (UDP uses
// udpDevice, see udp.go).
type tcpDevice struct {
	addr string
	conn net.Conn
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func newTCPDevice(addr string) *tcpDevice {
	return &tcpDevice{
		addr: addr,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

func (d *tcpDevice) Open(ctx context.Context) error {
	if d.conn != nil {
		return ErrTransportIsAlreadyOpen
	}
	conn, err := d.dial(ctx, d.addr)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

func (d *tcpDevice) Close() error {
	if d.conn == nil {
		return ErrTransportIsAlreadyClosed
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *tcpDevice) Write(buf []byte) error {
	if d.conn == nil {
		return ErrTransportClosed
	}
	_, err := d.conn.Write(buf)
	return err
}

func (d *tcpDevice) Read(ctx context.Context, buf []byte) (int, error) {
	if d.conn == nil {
		return 0, ErrTransportClosed
	}
	if dl, ok := ctx.Deadline(); ok {
		d.conn.SetReadDeadline(dl)
	} else {
		d.conn.SetReadDeadline(time.Time{})
	}
	return d.conn.Read(buf)
}

func (d *tcpDevice) Name() string {
	return fmt.Sprintf("tcp://%s", d.addr)
}
