package utils

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// CompressionAlgorithm defines supported compression methods
type CompressionAlgorithm string

const (
	CompressionNone   CompressionAlgorithm = "none"
	CompressionGzip   CompressionAlgorithm = "gzip"
	CompressionBrotli CompressionAlgorithm = "br"
	CompressionZstd   CompressionAlgorithm = "zstd"
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdInitErr
}

// CompressData compresses data using the specified algorithm
func CompressData(data []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch algorithm {
	case CompressionNone:
		return data, nil

	case CompressionGzip:
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write to gzip writer: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
		return buf.Bytes(), nil

	case CompressionBrotli:
		var buf bytes.Buffer
		writer := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write to brotli writer: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to close brotli writer: %w", err)
		}
		return buf.Bytes(), nil

	case CompressionZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("failed to init zstd: %w", err)
		}
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil

	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// DecompressData decompresses data using the specified algorithm
func DecompressData(compressed []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	if len(compressed) == 0 {
		return compressed, nil
	}

	switch algorithm {
	case CompressionNone:
		return compressed, nil

	case CompressionGzip:
		reader, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer reader.Close()

		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read from gzip reader: %w", err)
		}
		return data, nil

	case CompressionBrotli:
		data, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
		if err != nil {
			return nil, fmt.Errorf("failed to read from brotli reader: %w", err)
		}
		return data, nil

	case CompressionZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("failed to init zstd: %w", err)
		}
		data, err := dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decode zstd: %w", err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// GetBestCompression picks an algorithm by payload size. Small payloads are
// stored as-is.
func GetBestCompression(data []byte) CompressionAlgorithm {
	if len(data) < 500 {
		return CompressionNone
	}
	return CompressionZstd
}

// Frame prefixes compressed bytes with a one-byte algorithm tag so the reader
// does not need to know how the value was written.
func Frame(data []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	compressed, err := CompressData(data, algorithm)
	if err != nil {
		return nil, err
	}
	tag, ok := frameTags[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	return append([]byte{tag}, compressed...), nil
}

// Unframe reverses Frame.
func Unframe(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	for algo, tag := range frameTags {
		if framed[0] == tag {
			return DecompressData(framed[1:], algo)
		}
	}
	return nil, fmt.Errorf("unknown frame tag %#x", framed[0])
}

var frameTags = map[CompressionAlgorithm]byte{
	CompressionNone:   0,
	CompressionGzip:   1,
	CompressionBrotli: 2,
	CompressionZstd:   3,
}
