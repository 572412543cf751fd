// SPDX-License-Identifier: MIT
package sink

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func listenUnixgram(t *testing.T) (net.PacketConn, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vfx.sock")
	conn, err := net.ListenPacket("unixgram", path)
	if err != nil {
		t.Fatalf("listen %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, path
}

func readDatagram(t *testing.T, conn net.PacketConn) []byte {
	t.Helper()
	buf := make([]byte, 64*1024)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	return buf[:n]
}

func TestDatagramSinkUnixJSON(t *testing.T) {
	recv, path := listenUnixgram(t)

	d, err := NewDatagramSink(DatagramOptions{Address: path})
	if err != nil {
		t.Fatalf("NewDatagramSink: %v", err)
	}
	defer d.Close()

	s := testSnapshot(2)
	if !d.Publish(s) {
		t.Fatal("Publish() = false with a listening receiver")
	}

	var msg Message
	if err := json.Unmarshal(readDatagram(t, recv), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Volume != s.Volume || !msg.Beat || len(msg.FFT) != WireBins {
		t.Errorf("received %+v", msg)
	}
	if st := d.Stats(); st.Published != 1 || st.Failed != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestDatagramSinkNoReceiver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nobody.sock")
	d, err := NewDatagramSink(DatagramOptions{Address: path})
	if err != nil {
		t.Fatalf("NewDatagramSink: %v", err)
	}
	defer d.Close()

	for i := uint64(0); i < 5; i++ {
		if d.Publish(testSnapshot(i)) {
			t.Fatal("Publish() = true with no receiver")
		}
	}
	if err := d.Send([]byte("x")); !errors.Is(err, ErrNoReader) {
		t.Errorf("Send() = %v, want ErrNoReader", err)
	}
	if st := d.Stats(); st.Failed != 5 {
		t.Errorf("Stats().Failed = %d, want 5", st.Failed)
	}
}

func TestDatagramSinkCloseRemovesBindPath(t *testing.T) {
	_, path := listenUnixgram(t)
	d, err := NewDatagramSink(DatagramOptions{Address: path})
	if err != nil {
		t.Fatalf("NewDatagramSink: %v", err)
	}
	bind := d.LocalAddr().String()
	if _, err := os.Stat(bind); err != nil {
		t.Fatalf("bind path %s missing: %v", bind, err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(bind); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("bind path %s still present after Close (err=%v)", bind, err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if d.Publish(testSnapshot(1)) {
		t.Error("Publish() = true after Close")
	}
}

func TestDatagramSinkUDPBinary(t *testing.T) {
	recv, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer recv.Close()

	d, err := NewDatagramSink(DatagramOptions{
		Network: "udp",
		Address: recv.LocalAddr().String(),
		Codec:   CodecBinary,
	})
	if err != nil {
		t.Fatalf("NewDatagramSink: %v", err)
	}
	defer d.Close()

	if !d.Publish(testSnapshot(9)) {
		t.Fatal("Publish() = false")
	}
	p, err := DecodeBinary(readDatagram(t, recv))
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if p.Seq != 9 || !p.Peak || p.Beat {
		t.Errorf("packet = %+v", p)
	}
}

func TestNewDatagramSinkErrors(t *testing.T) {
	tests := []struct {
		name string
		opts DatagramOptions
	}{
		{"no address", DatagramOptions{}},
		{"bad network", DatagramOptions{Network: "tcp", Address: "127.0.0.1:1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d, err := NewDatagramSink(tt.opts); err == nil {
				d.Close()
				t.Error("expected error")
			}
		})
	}
}
