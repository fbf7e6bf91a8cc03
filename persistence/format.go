// Package persistence implements the snapshot file format: a small binary
// header, an optionally compressed payload, and a CRC32 checksum for
// detecting storage corruption.
package persistence

import "errors"

const (
	// MagicNumber identifies snapshot files (ASCII: "ANL1").
	MagicNumber = 0x414E4C31

	// Version is the current file format version.
	Version = 0x00010000
)

// CompressionType selects the payload compression algorithm.
type CompressionType uint8

const (
	// CompressionNone stores the payload uncompressed.
	CompressionNone CompressionType = 0

	// CompressionLZ4 uses LZ4 block compression (fast, moderate ratio).
	CompressionLZ4 CompressionType = 1

	// CompressionZSTD uses Zstandard compression (slower, better ratio).
	CompressionZSTD CompressionType = 2
)

var (
	ErrInvalidMagic        = errors.New("invalid magic number")
	ErrInvalidVersion      = errors.New("unsupported version")
	ErrUnknownCompression  = errors.New("unknown compression type")
	ErrUnknownCodec        = errors.New("unknown codec")
	ErrTruncatedSnapshot   = errors.New("truncated snapshot")
	ErrPayloadSizeMismatch = errors.New("decompressed payload size mismatch")
)
