// Package index manages the per-bucket index files of a table and the index
// manifests that list them for a snapshot.
package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/nexuslake/compressors"
	"github.com/INLOpen/nexuslake/core"
)

const (
	// HashIndexMagic opens every hash index file.
	HashIndexMagic   = 0xBAAAD710
	HashIndexVersion = 1
	headerSize       = 4 + 1 + 1
)

// ErrChecksumMismatch is returned when an index file fails verification.
var ErrChecksumMismatch = fmt.Errorf("index checksum mismatch")

// EncodeHashIndex lays out a hash index file:
//
//	magic(4) | version(1) | compression(1) | compressed payload | crc32(4)
//
// The payload is a uint32 count followed by the int32 hashes, little-endian.
// The checksum covers everything before it.
func EncodeHashIndex(hashes []int32, compression core.CompressionType) ([]byte, error) {
	c, err := compressors.ForType(compression)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 4+4*len(hashes))
	binary.LittleEndian.PutUint32(raw[0:4], uint32(len(hashes)))
	for i, h := range hashes {
		binary.LittleEndian.PutUint32(raw[4+4*i:], uint32(h))
	}

	var buf bytes.Buffer
	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], HashIndexMagic)
	hdr[4] = HashIndexVersion
	hdr[5] = byte(c.Type())
	buf.Write(hdr)
	payload, err := c.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress hash index: %w", err)
	}
	buf.Write(payload)
	crcBuf := make([]byte, core.ChecksumSize)
	binary.LittleEndian.PutUint32(crcBuf, crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(crcBuf)
	return buf.Bytes(), nil
}

// DecodeHashIndex verifies and decodes a file produced by EncodeHashIndex.
func DecodeHashIndex(data []byte) ([]int32, error) {
	if len(data) < headerSize+core.ChecksumSize {
		return nil, io.ErrUnexpectedEOF
	}
	body := data[:len(data)-core.ChecksumSize]
	got := binary.LittleEndian.Uint32(data[len(data)-core.ChecksumSize:])
	if want := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("%w: got=%08x want=%08x", ErrChecksumMismatch, got, want)
	}
	if magic := binary.LittleEndian.Uint32(body[0:4]); magic != HashIndexMagic {
		return nil, fmt.Errorf("invalid hash index magic %08x", magic)
	}
	if body[4] != HashIndexVersion {
		return nil, fmt.Errorf("unsupported hash index version %d", body[4])
	}
	c, err := compressors.ForType(core.CompressionType(body[5]))
	if err != nil {
		return nil, err
	}
	rc, err := c.Decompress(body[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("decompress hash index: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("decompress hash index: %w", err)
	}
	if len(raw) < 4 {
		return nil, io.ErrUnexpectedEOF
	}
	n := int(binary.LittleEndian.Uint32(raw[0:4]))
	if len(raw) != 4+4*n {
		return nil, fmt.Errorf("hash index payload has %d bytes, want %d", len(raw), 4+4*n)
	}
	hashes := make([]int32, n)
	for i := range hashes {
		hashes[i] = int32(binary.LittleEndian.Uint32(raw[4+4*i:]))
	}
	return hashes, nil
}
