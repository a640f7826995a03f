package transfer

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Part is one fixed-size byte range of a staged file.
type Part struct {
	Number int32
	Offset int64
	Size   int64
	IsLast bool
}

// PlanParts splits size bytes into parts of partSize. The part size is grown
// uniformly if the file would otherwise need more than MaxParts parts.
// An empty file still gets one empty part.
func PlanParts(size, partSize int64) ([]Part, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid size %d", size)
	}
	if partSize <= 0 {
		return nil, fmt.Errorf("invalid part size %d", partSize)
	}
	partSize = effectivePartSize(size, partSize)
	if partSize > MaxPartSize {
		return nil, fmt.Errorf("file of %d bytes needs parts larger than 5 GiB", size)
	}

	if size == 0 {
		return []Part{{Number: 1, IsLast: true}}, nil
	}

	n := (size + partSize - 1) / partSize
	parts := make([]Part, 0, n)
	for i := int64(0); i < n; i++ {
		offset := i * partSize
		length := partSize
		if offset+length > size {
			length = size - offset
		}
		parts = append(parts, Part{
			Number: int32(i + 1),
			Offset: offset,
			Size:   length,
			IsLast: i == n-1,
		})
	}
	return parts, nil
}

func effectivePartSize(size, partSize int64) int64 {
	if size <= partSize*MaxParts {
		return partSize
	}
	// Smallest multiple of 1 MiB that fits the file into MaxParts parts.
	const step = 1024 * 1024
	need := (size + MaxParts - 1) / MaxParts
	return ((need + step - 1) / step) * step
}

var ErrShortRead = errors.New("short read")

// partReader reads parts of one file into a reusable buffer.
type partReader struct {
	file *os.File
	buf  []byte
}

func newPartReader(path string, buf []byte) (*partReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &partReader{file: f, buf: buf}, nil
}

// Read fills the buffer with p's bytes and returns them with their SHA-256.
// The slice is only valid until the next Read.
func (r *partReader) Read(p Part) ([]byte, []byte, error) {
	if int64(cap(r.buf)) < p.Size {
		r.buf = make([]byte, p.Size)
	}
	data := r.buf[:p.Size]
	n, err := r.file.ReadAt(data, p.Offset)
	if int64(n) != p.Size {
		if err == nil || err == io.EOF {
			err = fmt.Errorf("%w: part %d got %d of %d bytes", ErrShortRead, p.Number, n, p.Size)
		}
		return nil, nil, err
	}
	sum := sha256.Sum256(data)
	return data, sum[:], nil
}

func (r *partReader) Close() error {
	return r.file.Close()
}

// HexDigest renders a digest the way minio and the archive expect it.
func HexDigest(sum []byte) string {
	return hex.EncodeToString(sum)
}

// Base64Digest renders a digest the way S3 checksum headers expect it.
func Base64Digest(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

// progressReader reports the furthest position read through it.
// Seeking back (as SDKs do to re-sign or retry a body) lowers the report.
type progressReader struct {
	mu       sync.Mutex
	r        io.Reader
	pos      int64
	onUpdate func(int64)
}

func newProgressReader(r io.Reader, onUpdate func(int64)) *progressReader {
	return &progressReader{r: r, onUpdate: onUpdate}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.pos += int64(n)
		pos := p.pos
		p.mu.Unlock()
		p.onUpdate(pos)
	}
	return n, err
}

// Seek is supported when the wrapped reader is an io.Seeker.
func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("progress reader: underlying reader cannot seek")
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	p.mu.Lock()
	p.pos = pos
	p.mu.Unlock()
	p.onUpdate(pos)
	return pos, nil
}
