package transfer

import (
	"bytes"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanParts(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		partSize  int64
		wantSizes []int64
	}{
		{"empty file", 0, 10, []int64{0}},
		{"smaller than one part", 5, 10, []int64{5}},
		{"exact multiple", 30, 10, []int64{10, 10, 10}},
		{"short tail", 25, 10, []int64{10, 10, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := PlanParts(tt.size, tt.partSize)
			require.NoError(t, err)
			require.Len(t, parts, len(tt.wantSizes))

			var offset int64
			for i, p := range parts {
				assert.Equal(t, int32(i+1), p.Number)
				assert.Equal(t, offset, p.Offset)
				assert.Equal(t, tt.wantSizes[i], p.Size)
				assert.Equal(t, i == len(parts)-1, p.IsLast)
				offset += p.Size
			}
			assert.Equal(t, tt.size, offset)
		})
	}
}

func TestPlanPartsGrowsPastPartLimit(t *testing.T) {
	size := int64(1024*MaxParts + 1)
	parts, err := PlanParts(size, 1024)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(parts), MaxParts)
	assert.Equal(t, int64(1024*1024), parts[0].Size)

	var total int64
	for _, p := range parts {
		total += p.Size
	}
	assert.Equal(t, size, total)
}

func TestPlanPartsRejectsInvalidInput(t *testing.T) {
	_, err := PlanParts(-1, 10)
	assert.Error(t, err)
	_, err = PlanParts(10, 0)
	assert.Error(t, err)
}

func TestPartReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	writeFile(t, path, 25)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	parts, err := PlanParts(25, 10)
	require.NoError(t, err)

	r, err := newPartReader(path, make([]byte, 10))
	require.NoError(t, err)
	defer r.Close()

	var got []byte
	for _, p := range parts {
		data, sum, err := r.Read(p)
		require.NoError(t, err)
		want := sha256.Sum256(raw[p.Offset : p.Offset+p.Size])
		assert.Equal(t, want[:], sum)
		got = append(got, data...)
	}
	assert.Equal(t, raw, got)
}

func TestPartReaderShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.bin")
	writeFile(t, path, 5)

	r, err := newPartReader(path, nil)
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.Read(Part{Number: 1, Offset: 0, Size: 10})
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestDigestEncodings(t *testing.T) {
	sum := sha256.Sum256([]byte("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HexDigest(sum[:]))
	assert.Equal(t, "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", Base64Digest(sum[:]))
}

func TestProgressReaderTracksPosition(t *testing.T) {
	var last int64
	pr := newProgressReader(bytes.NewReader(make([]byte, 100)), func(n int64) { last = n })

	buf := make([]byte, 30)
	_, err := pr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(30), last)

	_, err = pr.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	n, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	assert.Equal(t, int64(100), last)
}
