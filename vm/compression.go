package vm

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// CompressionType represents the compression algorithm used for a swap slot
type CompressionType uint8

const (
	CompressionNone   CompressionType = 0
	CompressionLZ4    CompressionType = 1
	CompressionSnappy CompressionType = 2
	// CompressionAuto tries LZ4 and Snappy and keeps the smaller result
	CompressionAuto CompressionType = 0xFF
)

// Swap slot header layout:
// [0-1]: Magic number (0x5A0F)
// [2]: Compression type (0=none, 1=LZ4, 2=Snappy)
// [3]: Reserved
// [4-5]: Uncompressed size
// [6-7]: Stored payload size
// [8-11]: Checksum of the uncompressed page (CRC32)
// [12+]: Payload

const (
	SlotMagic               = 0x5A0F
	SlotHeaderSize          = 12
	SlotSize                = SlotHeaderSize + PageSize
	MinCompressionThreshold = 100 // Minimum bytes saved to keep a compressed payload
)

// ParseCompression maps a config name to a compression type
func ParseCompression(name string) (CompressionType, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "snappy":
		return CompressionSnappy, nil
	case "auto":
		return CompressionAuto, nil
	default:
		return CompressionNone, fmt.Errorf("unsupported compression: %s (must be none, lz4, snappy, or auto)", name)
	}
}

func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionSnappy:
		return "snappy"
	case CompressionAuto:
		return "auto"
	default:
		return fmt.Sprintf("compression(%d)", uint8(ct))
	}
}

// encodeSlot compresses a page and frames it with a slot header.
// The returned buffer is at most SlotSize bytes.
func encodeSlot(page []byte, compressionType CompressionType) ([]byte, CompressionType, error) {
	if len(page) != PageSize {
		return nil, CompressionNone, fmt.Errorf("page data must be exactly %d bytes, got %d", PageSize, len(page))
	}

	usedType, payload, err := compressPayload(page, compressionType)
	if err != nil {
		return nil, CompressionNone, err
	}

	buf := make([]byte, SlotHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], SlotMagic)
	buf[2] = uint8(usedType)
	buf[3] = 0
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(page)))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(payload)))
	binary.LittleEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(page))
	copy(buf[SlotHeaderSize:], payload)

	return buf, usedType, nil
}

// decodeSlot verifies a slot image and decompresses it into dst
func decodeSlot(slot []byte, dst []byte) error {
	if len(slot) < SlotHeaderSize {
		return fmt.Errorf("data too short for slot header: %d bytes", len(slot))
	}
	if len(dst) != PageSize {
		return fmt.Errorf("destination must be exactly %d bytes, got %d", PageSize, len(dst))
	}

	magic := binary.LittleEndian.Uint16(slot[0:2])
	if magic != SlotMagic {
		return fmt.Errorf("invalid magic number: got %04x, expected %04x", magic, SlotMagic)
	}

	compressionType := CompressionType(slot[2])
	uncompressedSize := binary.LittleEndian.Uint16(slot[4:6])
	payloadSize := binary.LittleEndian.Uint16(slot[6:8])
	checksum := binary.LittleEndian.Uint32(slot[8:12])

	if uncompressedSize != PageSize {
		return fmt.Errorf("unexpected uncompressed size %d", uncompressedSize)
	}
	if SlotHeaderSize+int(payloadSize) > len(slot) {
		return fmt.Errorf("insufficient data for payload: need %d bytes, have %d",
			SlotHeaderSize+int(payloadSize), len(slot))
	}
	payload := slot[SlotHeaderSize : SlotHeaderSize+int(payloadSize)]

	switch compressionType {
	case CompressionNone:
		if len(payload) != PageSize {
			return fmt.Errorf("uncompressed payload size mismatch: got %d", len(payload))
		}
		copy(dst, payload)

	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return fmt.Errorf("LZ4 decompression failed: %w", err)
		}
		if n != PageSize {
			return fmt.Errorf("LZ4 decompression size mismatch: got %d, expected %d", n, PageSize)
		}

	case CompressionSnappy:
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return fmt.Errorf("snappy decompression failed: %w", err)
		}
		if len(decoded) != PageSize {
			return fmt.Errorf("snappy decompression size mismatch: got %d, expected %d", len(decoded), PageSize)
		}
		copy(dst, decoded)

	default:
		return fmt.Errorf("unsupported compression type: %d", compressionType)
	}

	if got := crc32.ChecksumIEEE(dst); got != checksum {
		return fmt.Errorf("checksum mismatch: got %08x, expected %08x", got, checksum)
	}
	return nil
}

// compressPayload returns the payload to store and the algorithm that
// produced it. Compression is dropped when it saves too little.
func compressPayload(page []byte, compressionType CompressionType) (CompressionType, []byte, error) {
	switch compressionType {
	case CompressionNone:
		return CompressionNone, page, nil

	case CompressionLZ4:
		compressed := make([]byte, lz4.CompressBlockBound(len(page)))
		n, err := lz4.CompressBlock(page, compressed, nil)
		if err != nil {
			return CompressionNone, nil, fmt.Errorf("LZ4 compression failed: %w", err)
		}
		// n == 0 means the block is incompressible
		if n == 0 || len(page)-n < MinCompressionThreshold {
			return CompressionNone, page, nil
		}
		return CompressionLZ4, compressed[:n], nil

	case CompressionSnappy:
		compressed := snappy.Encode(nil, page)
		if len(page)-len(compressed) < MinCompressionThreshold {
			return CompressionNone, page, nil
		}
		return CompressionSnappy, compressed, nil

	case CompressionAuto:
		lz4Type, lz4Payload, err := compressPayload(page, CompressionLZ4)
		if err != nil {
			return CompressionNone, nil, err
		}
		snappyType, snappyPayload, err := compressPayload(page, CompressionSnappy)
		if err != nil {
			return CompressionNone, nil, err
		}
		if len(lz4Payload) <= len(snappyPayload) {
			return lz4Type, lz4Payload, nil
		}
		return snappyType, snappyPayload, nil

	default:
		return CompressionNone, nil, fmt.Errorf("unsupported compression type: %d", compressionType)
	}
}

// SwapCompressionStats tracks how swap slots were encoded
type SwapCompressionStats struct {
	TotalPages         uint64
	CompressedPages    uint64
	TotalBytesOriginal uint64
	TotalBytesStored   uint64
	LZ4Count           uint64
	SnappyCount        uint64
	NoneCount          uint64
}

// add updates stats for one encoded slot of storedBytes bytes
func (s *SwapCompressionStats) add(compressionType CompressionType, storedBytes int) {
	s.TotalPages++
	s.TotalBytesOriginal += PageSize
	s.TotalBytesStored += uint64(storedBytes)

	switch compressionType {
	case CompressionLZ4:
		s.CompressedPages++
		s.LZ4Count++
	case CompressionSnappy:
		s.CompressedPages++
		s.SnappyCount++
	default:
		s.NoneCount++
	}
}

// GetCompressionRatio returns overall compression ratio
func (s SwapCompressionStats) GetCompressionRatio() float64 {
	if s.TotalBytesStored == 0 {
		return 1.0
	}
	return float64(s.TotalBytesOriginal) / float64(s.TotalBytesStored)
}
