// SPDX-License-Identifier: MIT
package sink

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
)

// WireBins is the number of spectrum bins carried in a datagram.
const WireBins = 32

// Codec selects the datagram encoding.
type Codec int

const (
	CodecJSON Codec = iota
	CodecBinary
)

func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	case CodecBinary:
		return "binary"
	default:
		return fmt.Sprintf("Codec(%d)", int(c))
	}
}

// ParseCodec converts "json" or "binary" to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecJSON, nil
	case "binary", "bin":
		return CodecBinary, nil
	default:
		return CodecJSON, fmt.Errorf("unknown codec %q", name)
	}
}

// Append encodes s onto dst.
func (c Codec) Append(dst []byte, s analysis.Snapshot) ([]byte, error) {
	switch c {
	case CodecBinary:
		return AppendBinary(dst, s), nil
	default:
		return AppendJSON(dst, s)
	}
}

// Message is the JSON datagram consumers read.
type Message struct {
	Volume float64   `json:"volume"`
	Peak   bool      `json:"peak"`
	Beat   bool      `json:"beat"`
	FFT    []float64 `json:"fft"`
}

func wireSpectrum(s analysis.Snapshot) []float64 {
	if len(s.Spectrum) > WireBins {
		return s.Spectrum[:WireBins]
	}
	if s.Spectrum == nil {
		return []float64{}
	}
	return s.Spectrum
}

// AppendJSON encodes s as a Message onto dst.
func AppendJSON(dst []byte, s analysis.Snapshot) ([]byte, error) {
	b, err := json.Marshal(Message{
		Volume: s.Volume,
		Peak:   s.Peak,
		Beat:   s.Beat,
		FFT:    wireSpectrum(s),
	})
	if err != nil {
		return dst, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(dst, b...), nil
}

/*
Binary datagram (BigEndian):

|<- 4 ->|<---- 8 ---->|<- 1 ->|<- 4 ->|<- 2 ->|<---- N * 4 ---->|
+-------+-------------+-------+-------+-------+-----------------+
|  seq  |  timestamp  | flags | volume| count |   magnitudes    |
|uint32 | int64 nanos | uint8 |float32|uint16 |  N * float32    |
+-------+-------------+-------+-------+-------+-----------------+

flags: bit 0 peak, bit 1 beat. N is at most WireBins.
*/

const (
	binaryHeaderSize = 4 + 8 + 1 + 4 + 2

	flagPeak = 1 << 0
	flagBeat = 1 << 1
)

// AppendBinary encodes s in the binary packet layout onto dst.
func AppendBinary(dst []byte, s analysis.Snapshot) []byte {
	spec := wireSpectrum(s)
	var flags uint8
	if s.Peak {
		flags |= flagPeak
	}
	if s.Beat {
		flags |= flagBeat
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(s.Seq))
	dst = binary.BigEndian.AppendUint64(dst, uint64(s.Time.UnixNano()))
	dst = append(dst, flags)
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(s.Volume)))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(spec)))
	for _, m := range spec {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(m)))
	}
	return dst
}

// Packet is a decoded binary datagram.
type Packet struct {
	Seq        uint32
	Nanos      int64
	Peak, Beat bool
	Volume     float32
	Magnitudes []float32
}

var errShortPacket = errors.New("short packet")

// DecodeBinary parses a binary datagram.
func DecodeBinary(b []byte) (Packet, error) {
	if len(b) < binaryHeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", errShortPacket, len(b))
	}
	p := Packet{
		Seq:    binary.BigEndian.Uint32(b[0:4]),
		Nanos:  int64(binary.BigEndian.Uint64(b[4:12])),
		Peak:   b[12]&flagPeak != 0,
		Beat:   b[12]&flagBeat != 0,
		Volume: math.Float32frombits(binary.BigEndian.Uint32(b[13:17])),
	}
	n := int(binary.BigEndian.Uint16(b[17:19]))
	body := b[binaryHeaderSize:]
	if len(body) != n*4 {
		return Packet{}, fmt.Errorf("%w: want %d magnitudes, have %d bytes", errShortPacket, n, len(body))
	}
	p.Magnitudes = make([]float32, n)
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(body[i*4:]))
	}
	return p, nil
}
