package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block algorithm for fields flagged as compressed.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var ErrCorruptedBlock = errors.New("codec: corrupted compressed block")

// block layout: algorithm(1) + uncompressed size(4) + data
const blockHeaderSize = 5

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

// Compress returns data framed as a block. Falls back to storing the bytes
// as-is when the algorithm does not make them smaller.
func Compress(data []byte, c Compression) ([]byte, error) {
	var body []byte
	switch c {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, err
		}
		body = dst[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		body = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CompressionNone:
	default:
		return nil, fmt.Errorf("codec: unknown compression %d", c)
	}
	if len(body) == 0 || len(body) >= len(data) {
		c, body = CompressionNone, data
	}

	block := make([]byte, blockHeaderSize, blockHeaderSize+len(body))
	block[0] = byte(c)
	binary.LittleEndian.PutUint32(block[1:], uint32(len(data)))
	return append(block, body...), nil
}

// Decompress reverses Compress.
func Decompress(block []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, ErrCorruptedBlock
	}
	size := int(binary.LittleEndian.Uint32(block[1:]))
	body := block[blockHeaderSize:]
	switch Compression(block[0]) {
	case CompressionNone:
		if len(body) != size {
			return nil, ErrCorruptedBlock
		}
		return append([]byte{}, body...), nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedBlock, err)
		}
		if n != size {
			return nil, ErrCorruptedBlock
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedBlock, err)
		}
		return out, nil
	default:
		return nil, ErrCorruptedBlock
	}
}
