package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/annlite/annlite/codec"
)

// Snapshot is the serialized state of an index plus its attached metadata.
// The sections are opaque byte blobs produced by the components themselves;
// this package only frames, compresses, and checksums them.
type Snapshot struct {
	// IndexType names the index implementation ("hnsw", "flat").
	IndexType string

	// Index is the gob-encoded index state.
	Index []byte

	// Metadata is the gob-encoded metadata store, or nil.
	Metadata []byte
}

// manifest is the self-describing JSON header section of a snapshot.
type manifest struct {
	IndexType string `json:"index_type"`
	Codec     string `json:"codec"`
}

// Options configures snapshot writing.
type Options struct {
	// Compression selects the payload compression algorithm.
	Compression CompressionType

	// Codec encodes the manifest section.
	Codec codec.Codec
}

// DefaultOptions holds the default snapshot configuration.
var DefaultOptions = Options{
	Compression: CompressionZSTD,
}

// zstd encoder/decoder pools, shared across snapshots
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

// Write serializes the snapshot to w.
//
// File layout (little-endian):
//
//	magic uint32 | version uint32 | compression uint8 | pad [3]byte |
//	uncompressedSize uint64 | storedSize uint64 | payload | crc32 uint32
//
// The trailing checksum covers the payload bytes as stored (after
// compression).
func Write(w io.Writer, snap *Snapshot, optFns ...func(o *Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	payload, err := encodePayload(snap, opts.Codec)
	if err != nil {
		return err
	}

	stored, compression, err := compress(payload, opts.Compression)
	if err != nil {
		return err
	}

	var header [28]byte
	binary.LittleEndian.PutUint32(header[0:], MagicNumber)
	binary.LittleEndian.PutUint32(header[4:], Version)
	header[8] = byte(compression)
	binary.LittleEndian.PutUint64(header[12:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(header[20:], uint64(len(stored)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("persistence: write header: %w", err)
	}

	cw := NewChecksumWriter(w)
	if _, err := cw.Write(stored); err != nil {
		return fmt.Errorf("persistence: write payload: %w", err)
	}

	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], cw.Sum())
	if _, err := w.Write(crc[:]); err != nil {
		return fmt.Errorf("persistence: write checksum: %w", err)
	}
	return nil
}

// Read deserializes a snapshot from r, verifying version and checksum.
func Read(r io.Reader) (*Snapshot, error) {
	var header [28]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("persistence: read header: %w", err)
	}

	if binary.LittleEndian.Uint32(header[0:]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(header[4:]) != Version {
		return nil, ErrInvalidVersion
	}

	compression := CompressionType(header[8])
	uncompressedSize := binary.LittleEndian.Uint64(header[12:])
	storedSize := binary.LittleEndian.Uint64(header[20:])

	cr := NewChecksumReader(r)
	stored := make([]byte, storedSize)
	if _, err := io.ReadFull(cr, stored); err != nil {
		return nil, fmt.Errorf("persistence: read payload: %w", err)
	}

	var crc [4]byte
	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return nil, fmt.Errorf("persistence: read checksum: %w", err)
	}
	if err := cr.Verify(binary.LittleEndian.Uint32(crc[:])); err != nil {
		return nil, err
	}

	payload, err := decompress(stored, compression, uncompressedSize)
	if err != nil {
		return nil, err
	}

	return decodePayload(payload)
}

// SaveToFile writes the snapshot to a temp file and renames it into place, so
// a crash mid-write never leaves a truncated snapshot at the target path.
func SaveToFile(path string, snap *Snapshot, optFns ...func(o *Options)) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := Write(bw, snap, optFns...); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: flush snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: rename snapshot: %w", err)
	}
	return nil
}

// LoadFromFile reads a snapshot from the given path.
func LoadFromFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open snapshot: %w", err)
	}
	defer f.Close()

	return Read(bufio.NewReader(f))
}

// encodePayload frames the manifest and the component sections as
// length-prefixed blobs.
func encodePayload(snap *Snapshot, c codec.Codec) ([]byte, error) {
	m, err := c.Marshal(manifest{IndexType: snap.IndexType, Codec: c.Name()})
	if err != nil {
		return nil, fmt.Errorf("persistence: encode manifest: %w", err)
	}

	var buf bytes.Buffer
	for _, section := range [][]byte{m, snap.Index, snap.Metadata} {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(section)))
		buf.Write(n[:])
		buf.Write(section)
	}
	return buf.Bytes(), nil
}

func decodePayload(payload []byte) (*Snapshot, error) {
	sections := make([][]byte, 0, 3)
	for i := 0; i < 3; i++ {
		if len(payload) < 4 {
			return nil, ErrTruncatedSnapshot
		}
		n := binary.LittleEndian.Uint32(payload)
		payload = payload[4:]
		if uint32(len(payload)) < n {
			return nil, ErrTruncatedSnapshot
		}
		sections = append(sections, payload[:n])
		payload = payload[n:]
	}

	var m manifest
	if err := (codec.JSON{}).Unmarshal(sections[0], &m); err != nil {
		return nil, fmt.Errorf("persistence: decode manifest: %w", err)
	}
	if _, ok := codec.ByName(m.Codec); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, m.Codec)
	}

	snap := &Snapshot{IndexType: m.IndexType}
	if len(sections[1]) > 0 {
		snap.Index = append([]byte(nil), sections[1]...)
	}
	if len(sections[2]) > 0 {
		snap.Metadata = append([]byte(nil), sections[2]...)
	}
	return snap, nil
}

func compress(payload []byte, ct CompressionType) ([]byte, CompressionType, error) {
	switch ct {
	case CompressionNone:
		return payload, CompressionNone, nil

	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("persistence: lz4 compress: %w", err)
		}
		if n == 0 || n >= len(payload) {
			// Incompressible, store as-is.
			return payload, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil

	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)

		compressed := enc.EncodeAll(payload, nil)
		if len(compressed) >= len(payload) {
			return payload, CompressionNone, nil
		}
		return compressed, CompressionZSTD, nil

	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownCompression, ct)
	}
}

func decompress(stored []byte, ct CompressionType, uncompressedSize uint64) ([]byte, error) {
	switch ct {
	case CompressionNone:
		if uint64(len(stored)) != uncompressedSize {
			return nil, ErrPayloadSizeMismatch
		}
		return stored, nil

	case CompressionLZ4:
		payload := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(stored, payload)
		if err != nil {
			return nil, fmt.Errorf("persistence: lz4 decompress: %w", err)
		}
		if uint64(n) != uncompressedSize {
			return nil, ErrPayloadSizeMismatch
		}
		return payload, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		payload, err := dec.DecodeAll(stored, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd decompress: %w", err)
		}
		if uint64(len(payload)) != uncompressedSize {
			return nil, ErrPayloadSizeMismatch
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, ct)
	}
}
