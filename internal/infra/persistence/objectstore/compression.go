package objectstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the codec applied to bucket objects.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZSTD Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression maps a config value to a Compression. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZSTD, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("unknown snapshot compression %q", s)
	}
}

func (c Compression) ext() string {
	switch c {
	case CompressionZSTD:
		return ".json.zst"
	case CompressionLZ4:
		return ".json.lz4"
	default:
		return ".json"
	}
}

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
	dec, _ := zstd.NewReader(nil)
	return dec
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		return compressLZ4(data)
	default:
		return nil, fmt.Errorf("unknown snapshot compression %q", c)
	}
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		return dec.DecodeAll(data, nil)
	case CompressionLZ4:
		return decompressLZ4(data)
	default:
		return nil, fmt.Errorf("unknown snapshot compression %q", c)
	}
}

// LZ4 blocks are framed as [uvarint raw size][flag][payload]. Flag 0 stores
// the payload raw when it does not compress.
func compressLZ4(data []byte) ([]byte, error) {
	header := binary.AppendUvarint(nil, uint64(len(data)))
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(data) {
		out := append(header, 0)
		return append(out, data...), nil
	}
	out := append(header, 1)
	return append(out, buf[:n]...), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 || len(data) < n+1 {
		return nil, errors.New("lz4 block header truncated")
	}
	flag, payload := data[n], data[n+1:]
	if flag == 0 {
		if uint64(len(payload)) != size {
			return nil, errors.New("lz4 raw block size mismatch")
		}
		return payload, nil
	}
	out := make([]byte, size)
	got, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, err
	}
	if uint64(got) != size {
		return nil, errors.New("lz4 decompressed size mismatch")
	}
	return out, nil
}
