package modbus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"
)

// LoadCertPool loads a certificate store from a PEM file into a CertPool.
func LoadCertPool(filePath string) (*x509.CertPool, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%v: empty file", filePath)
	}

	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(buf) {
		return nil, fmt.Errorf("%v: no certificate found", filePath)
	}

	return cp, nil
}

// TLSConfig configures a TLS-wrapped TCP transport.
type TLSConfig struct {
	ClientCert *tls.Certificate
	RootCAs    *x509.CertPool
	// skipServerVerification disables certificate chain verification on
	// the server certificate (client side only); exposed for testing
	// against self-signed deployments, never defaulted to true.
	SkipServerVerification bool
}

// tlsDevice adapts a *tls.Conn to AbstractIoDevice. A TLS socket that
// hits a write timeout becomes permanently unusable (see
// https://pkg.go.dev/crypto/tls#Conn.SetWriteDeadline): every subsequent
// operation would otherwise replay the same stale timeout error, so the
// socket is closed outright the first time that happens.
type tlsDevice struct {
	addr string
	cfg  *TLSConfig
	conn *tls.Conn
}

func newTLSDevice(addr string, cfg *TLSConfig) *tlsDevice {
	return &tlsDevice{addr: addr, cfg: cfg}
}

func (d *tlsDevice) Open(ctx context.Context) error {
	if d.conn != nil {
		return ErrTransportIsAlreadyOpen
	}

	tlsConf := &tls.Config{
		RootCAs:            d.cfg.RootCAs,
		InsecureSkipVerify: d.cfg.SkipServerVerification,
	}
	if d.cfg.ClientCert != nil {
		tlsConf.Certificates = []tls.Certificate{*d.cfg.ClientCert}
	}

	var dialer net.Dialer
	rawConn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return err
	}

	conn := tls.Client(rawConn, tlsConf)
	if err := conn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return err
	}

	d.conn = conn
	return nil
}

func (d *tlsDevice) Close() error {
	if d.conn == nil {
		return ErrTransportIsAlreadyClosed
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *tlsDevice) Write(buf []byte) error {
	if d.conn == nil {
		return ErrTransportClosed
	}
	_, err := d.conn.Write(buf)
	if err != nil && os.IsTimeout(err) {
		d.conn.Close()
		d.conn = nil
	}
	return err
}

func (d *tlsDevice) Read(ctx context.Context, buf []byte) (int, error) {
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

func (d *tlsDevice) Name() string {
	return fmt.Sprintf("tls://%s", d.addr)
}
