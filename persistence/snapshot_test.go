package persistence

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		IndexType: "hnsw",
		Index:     bytes.Repeat([]byte("vector graph state "), 64),
		Metadata:  []byte(`{"color":"red"}`),
	}
}

func TestWriteRead(t *testing.T) {
	compressions := map[string]CompressionType{
		"none": CompressionNone,
		"lz4":  CompressionLZ4,
		"zstd": CompressionZSTD,
	}

	for name, ct := range compressions {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, testSnapshot(), func(o *Options) {
				o.Compression = ct
			})
			require.NoError(t, err)

			snap, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, "hnsw", snap.IndexType)
			assert.Equal(t, testSnapshot().Index, snap.Index)
			assert.Equal(t, testSnapshot().Metadata, snap.Metadata)
		})
	}
}

func TestReadRejectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSnapshot()))
	data := buf.Bytes()

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		binary.LittleEndian.PutUint32(bad[0:], 0xDEADBEEF)

		_, err := Read(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("bad version", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		binary.LittleEndian.PutUint32(bad[4:], 0x7FFFFFFF)

		_, err := Read(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[29] ^= 0xFF

		var mismatch *ChecksumMismatchError
		_, err := Read(bytes.NewReader(bad))
		require.ErrorAs(t, err, &mismatch)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Read(bytes.NewReader(data[:10]))
		require.Error(t, err)
	})
}

func TestEmptyMetadataSection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Snapshot{IndexType: "flat", Index: []byte("x")}))

	snap, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, "flat", snap.IndexType)
	assert.Equal(t, []byte("x"), snap.Index)
	assert.Nil(t, snap.Metadata)
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snap")

	require.NoError(t, SaveToFile(path, testSnapshot(), func(o *Options) {
		o.Compression = CompressionLZ4
	}))

	snap, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hnsw", snap.IndexType)
	assert.Equal(t, testSnapshot().Index, snap.Index)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.snap"))
	require.Error(t, err)
}
