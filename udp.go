package modbus

import (
	"context"
	"fmt"
	"net"
	"time"
)

// udpDevice adapts a dialed *net.UDPConn to AbstractIoDevice, consuming
// data off the socket on a byte-stream basis rather than datagram by
// datagram: a Read that asks for fewer bytes than a received datagram
// holds keeps the remainder buffered for the next call, the way a TCP
// socket would.
type udpDevice struct {
	addr          string
	sock          *net.UDPConn
	rxbuf         []byte
	leftoverCount int
}

func newUDPDevice(addr string) *udpDevice {
	return &udpDevice{addr: addr, rxbuf: make([]byte, maxRTUFrameLength)}
}

func (d *udpDevice) Open(ctx context.Context) error {
	if d.sock != nil {
		return ErrTransportIsAlreadyOpen
	}
	raddr, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		return err
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", raddr.String())
	if err != nil {
		return err
	}
	d.sock = conn.(*net.UDPConn)
	return nil
}

func (d *udpDevice) Close() error {
	if d.sock == nil {
		return ErrTransportIsAlreadyClosed
	}
	err := d.sock.Close()
	d.sock = nil
	return err
}

func (d *udpDevice) Write(buf []byte) error {
	if d.sock == nil {
		return ErrTransportClosed
	}
	_, err := d.sock.Write(buf)
	return err
}

func (d *udpDevice) Read(ctx context.Context, buf []byte) (int, error) {
	if d.sock == nil {
		return 0, ErrTransportClosed
	}

	if d.leftoverCount > 0 {
		copied := copy(buf, d.rxbuf[:d.leftoverCount])
		copy(d.rxbuf, d.rxbuf[copied:d.leftoverCount])
		d.leftoverCount -= copied
		return copied, nil
	}

	if dl, ok := ctx.Deadline(); ok {
		d.sock.SetReadDeadline(dl)
	} else {
		d.sock.SetReadDeadline(time.Time{})
	}

	n, err := d.sock.Read(d.rxbuf)
	if err != nil {
		return 0, err
	}
	copied := copy(buf, d.rxbuf[:n])
	copy(d.rxbuf, d.rxbuf[copied:n])
	d.leftoverCount = n - copied
	return copied, nil
}

func (d *udpDevice) Name() string {
	return fmt.Sprintf("udp://%s", d.addr)
}
