// Package compressors provides the block codecs used for index file payloads.
package compressors

import (
	"fmt"

	"github.com/INLOpen/nexuslake/core"
)

var registry = map[core.CompressionType]core.Compressor{
	core.CompressionNone:   &NoCompressionCompressor{},
	core.CompressionSnappy: NewSnappyCompressor(),
	core.CompressionLZ4:    NewLz4Compressor(),
	core.CompressionZSTD:   NewZstdCompressor(),
}

// ForType returns the shared compressor for t.
func ForType(t core.CompressionType) (core.Compressor, error) {
	c, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("unsupported compression type %d", t)
	}
	return c, nil
}

// ParseType resolves a configured compression name to its compressor.
func ParseType(name string) (core.Compressor, error) {
	t, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return ForType(t)
}
