package util

import (
	"github.com/dustin/go-humanize"
)

// FormatSize renders a byte count with binary units, e.g. "1.5 MiB".
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}

// FormatRate renders a transfer rate in bytes per second.
func FormatRate(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}
