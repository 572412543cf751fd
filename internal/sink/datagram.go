// SPDX-License-Identifier: MIT
package sink

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

// DefaultWriteTimeout bounds a single datagram write.
const DefaultWriteTimeout = 5 * time.Millisecond

// DatagramOptions configure a DatagramSink.
type DatagramOptions struct {
	Network      string // "unixgram" (default) or "udp"
	Address      string // socket path or host:port
	Codec        Codec
	WriteTimeout time.Duration
}

// DatagramSink sends each snapshot as one datagram. For unixgram it binds a
// temporary local path so the receiver sees a peer address; the path is
// removed on Close.
type DatagramSink struct {
	counters

	conn     net.PacketConn
	target   net.Addr
	bindPath string
	codec    Codec
	timeout  time.Duration

	mu     sync.Mutex // protects conn, buf and closed
	buf    []byte
	closed bool

	errLog *log.Limiter
}

// NewDatagramSink opens the local socket. The receiver does not need to exist
// yet; sends fail silently until it does.
func NewDatagramSink(opts DatagramOptions) (*DatagramSink, error) {
	if opts.Network == "" {
		opts.Network = "unixgram"
	}
	if opts.Address == "" {
		return nil, errors.New("datagram sink: address is required")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	d := &DatagramSink{
		codec:   opts.Codec,
		timeout: opts.WriteTimeout,
		buf:     make([]byte, 0, 1024),
		errLog:  log.NewLimiter(10 * time.Second),
	}

	switch opts.Network {
	case "unixgram":
		target, err := net.ResolveUnixAddr("unixgram", opts.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve socket path '%s': %w", opts.Address, err)
		}
		bindPath, err := tempSocketPath()
		if err != nil {
			return nil, err
		}
		conn, err := net.ListenPacket("unixgram", bindPath)
		if err != nil {
			return nil, fmt.Errorf("failed to bind '%s': %w", bindPath, err)
		}
		d.conn, d.target, d.bindPath = conn, target, bindPath
	case "udp", "udp4", "udp6":
		target, err := net.ResolveUDPAddr(opts.Network, opts.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", opts.Address, err)
		}
		conn, err := net.ListenPacket(opts.Network, ":0")
		if err != nil {
			return nil, fmt.Errorf("failed to open UDP socket: %w", err)
		}
		d.conn, d.target = conn, target
	default:
		return nil, fmt.Errorf("datagram sink: unsupported network %q", opts.Network)
	}

	log.Infof("Datagram: sending %v snapshots to %s://%s", d.codec, opts.Network, opts.Address)
	return d, nil
}

// tempSocketPath returns an unused path in the temp directory.
func tempSocketPath() (string, error) {
	f, err := os.CreateTemp("", "awesome-potato-*.sock")
	if err != nil {
		return "", fmt.Errorf("failed to reserve socket path: %w", err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return "", fmt.Errorf("failed to reserve socket path: %w", err)
	}
	return name, nil
}

// Send writes data as a single datagram.
func (d *DatagramSink) Send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(data)
}

func (d *DatagramSink) send(data []byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := d.conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
		return err
	}
	if _, err := d.conn.WriteTo(data, d.target); err != nil {
		if isNoReader(err) {
			return fmt.Errorf("%w: %v", ErrNoReader, err)
		}
		return err
	}
	return nil
}

// isNoReader reports whether err means the receiving socket is absent.
func isNoReader(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}

// Publish encodes s and sends it. Failures are logged, rate limited.
func (d *DatagramSink) Publish(s analysis.Snapshot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.codec.Append(d.buf[:0], s)
	if err != nil {
		d.errLog.Errorf("Datagram: %v", err)
		return d.record(false)
	}
	d.buf = buf

	if err := d.send(buf); err != nil {
		switch {
		case errors.Is(err, ErrClosed):
		case errors.Is(err, ErrNoReader):
			d.errLog.Debugf("Datagram: no receiver at %s", d.target)
		default:
			d.errLog.Warnf("Datagram: send to %s failed: %v", d.target, err)
		}
		return d.record(false)
	}
	return d.record(true)
}

// LocalAddr returns the bound local address.
func (d *DatagramSink) LocalAddr() net.Addr { return d.conn.LocalAddr() }

// Close closes the socket and removes the bind path. Safe to call twice.
func (d *DatagramSink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	log.Debugf("Datagram: closing socket to %s", d.target)

	err := d.conn.Close()
	if d.bindPath != "" {
		if rmErr := os.Remove(d.bindPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close datagram socket: %w", err)
	}
	return nil
}

var _ Sink = (*DatagramSink)(nil)
