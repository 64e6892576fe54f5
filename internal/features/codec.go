package features

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the payload of an encoded feature map is stored.
type Compression uint8

const (
	// CompressionNone stores raw float32 values.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses Zstandard (smaller, slower).
	CompressionZSTD Compression = 2
)

// ParseCompression maps a config name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression %q", name)
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// Header layout:
//
//	[0:4]   magic "PSFM"
//	[4]     version
//	[5]     compression
//	[6:8]   reserved
//	[8:12]  height
//	[12:16] width
//	[16:20] channels
//	[20:24] payload length in bytes
const (
	headerSize    = 24
	formatVersion = 1

	// MaxDecodedBytes bounds the float32 payload Decode accepts.
	MaxDecodedBytes = 1 << 30

	// lz4MaxRatio is the largest expansion an LZ4 block can encode.
	lz4MaxRatio = 255

	// zstdPrealloc caps the output buffer reserved before zstd decoding.
	zstdPrealloc = 1 << 20
)

var magic = [4]byte{'P', 'S', 'F', 'M'}

// ErrCorrupt is returned when a blob cannot be decoded as a feature map.
var ErrCorrupt = errors.New("corrupt feature map blob")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedBytes))
	return dec
}

// Encode serializes a feature map.
func Encode(m *Map, compression Compression) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	raw := make([]byte, 4*len(m.Data))
	for i, v := range m.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}

	var payload []byte
	switch compression {
	case CompressionNone:
		payload = raw
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible input.
			compression = CompressionNone
			payload = raw
		} else {
			payload = buf[:n]
		}
	case CompressionZSTD:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unsupported compression %v", compression)
	}

	out := make([]byte, headerSize+len(payload))
	copy(out[0:4], magic[:])
	out[4] = formatVersion
	out[5] = byte(compression)
	binary.LittleEndian.PutUint32(out[8:], uint32(m.Height))
	binary.LittleEndian.PutUint32(out[12:], uint32(m.Width))
	binary.LittleEndian.PutUint32(out[16:], uint32(m.Channels))
	binary.LittleEndian.PutUint32(out[20:], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out, nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Map, error) {
	if len(data) < headerSize || [4]byte(data[0:4]) != magic {
		return nil, ErrCorrupt
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[4])
	}
	compression := Compression(data[5])
	h, w, c, rawLen, err := decodedShape(data)
	if err != nil {
		return nil, err
	}
	payloadLen := uint64(binary.LittleEndian.Uint32(data[20:]))
	if uint64(len(data)-headerSize) < payloadLen {
		return nil, fmt.Errorf("%w: truncated payload", ErrCorrupt)
	}
	payload := data[headerSize : headerSize+int(payloadLen)]

	var raw []byte
	switch compression {
	case CompressionNone:
		raw = payload
	case CompressionLZ4:
		if uint64(rawLen) > lz4MaxRatio*payloadLen+headerSize {
			return nil, fmt.Errorf("%w: %d byte lz4 payload cannot hold %d bytes", ErrCorrupt, payloadLen, rawLen)
		}
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		raw = raw[:n]
	case CompressionZSTD:
		dec := getZstdDecoder()
		var err error
		raw, err = dec.DecodeAll(payload, make([]byte, 0, min(rawLen, zstdPrealloc)))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, compression)
	}
	if len(raw) != rawLen {
		return nil, fmt.Errorf("%w: payload has %d bytes, want %d", ErrCorrupt, len(raw), rawLen)
	}

	m := New(h, w, c)
	for i := range m.Data {
		m.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// decodedShape reads the dimensions from a blob header and returns them with
// the payload size they imply. Zero dimensions and payloads larger than
// MaxDecodedBytes are rejected before anything is allocated.
func decodedShape(data []byte) (h, w, c, rawLen int, err error) {
	dims := [3]uint64{
		uint64(binary.LittleEndian.Uint32(data[8:])),
		uint64(binary.LittleEndian.Uint32(data[12:])),
		uint64(binary.LittleEndian.Uint32(data[16:])),
	}
	size := uint64(4)
	for _, d := range dims {
		if d == 0 || d > math.MaxInt32 {
			return 0, 0, 0, 0, fmt.Errorf("%w: bad shape %dx%dx%d", ErrCorrupt, dims[0], dims[1], dims[2])
		}
		// Both factors are below 2^31, so the product cannot overflow.
		size *= d
		if size > MaxDecodedBytes {
			return 0, 0, 0, 0, fmt.Errorf("%w: shape %dx%dx%d exceeds %d bytes", ErrCorrupt, dims[0], dims[1], dims[2], MaxDecodedBytes)
		}
	}
	return int(dims[0]), int(dims[1]), int(dims[2]), int(size), nil
}
