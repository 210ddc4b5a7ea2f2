package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// CompressionType identifies the compression algorithm used.
// This is stored on disk to know how to decompress.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

// Compressor defines the interface for compression and decompression algorithms.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a config string to a CompressionType.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, &ValidationError{Field: "compression", Value: s, Message: "unknown compression type"}
	}
}

// ChecksumSize is the trailing CRC32 width of hash index files.
const ChecksumSize = 4

// PartitionInfo renders a partition for error messages: "partition k=v/k2=v2" or "table".
func PartitionInfo(keys []string, partition BinaryRow) string {
	if len(keys) == 0 {
		return "table"
	}
	row, err := partition.Decode()
	if err != nil {
		return "partition " + partition.String()
	}
	var sb strings.Builder
	sb.WriteString("partition ")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString("/")
		}
		var v any
		if i < len(row) {
			v = row[i]
		}
		fmt.Fprintf(&sb, "%s=%v", k, v)
	}
	return sb.String()
}
