package transfer

import (
	"errors"
	"fmt"
	"os"
)

// Pathway is the ingest route chosen for a file.
type Pathway int

const (
	// Direct sends the whole file in one call to the archive's ingest endpoint.
	Direct Pathway = iota
	// Staged uploads the file in parts to the staging bucket for archive pickup.
	Staged
)

func (p Pathway) String() string {
	switch p {
	case Direct:
		return "direct"
	case Staged:
		return "staged"
	default:
		return "unknown"
	}
}

// Classify returns Staged iff sizeBytes >= thresholdBytes.
func Classify(sizeBytes, thresholdBytes int64) Pathway {
	if sizeBytes >= thresholdBytes {
		return Staged
	}
	return Direct
}

// ClassifyFile stats path and classifies it. Only regular files can be classified.
func ClassifyFile(path string, thresholdBytes int64) (Pathway, int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Direct, 0, &ClassificationError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return Direct, 0, &ClassificationError{Path: path, Err: errors.New("not a regular file")}
	}
	if info.Size() < 0 {
		return Direct, 0, &ClassificationError{Path: path, Err: fmt.Errorf("invalid size %d", info.Size())}
	}
	return Classify(info.Size(), thresholdBytes), info.Size(), nil
}
