package util

import (
	"os"
	"strings"
)

// CheckDirectory stats path; a missing path is not an error.
func CheckDirectory(path string) (exists bool, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// systemFiles are OS bookkeeping entries that never belong in an archive.
var systemFiles = map[string]struct{}{
	".DS_Store":                 {},
	"Thumbs.db":                 {},
	"desktop.ini":               {},
	"$RECYCLE.BIN":              {},
	"System Volume Information": {},
}

// IsHidden reports whether a directory entry name is a dot-file.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// IsSystemFile reports whether name is an OS metadata file or folder.
func IsSystemFile(name string) bool {
	_, ok := systemFiles[name]
	return ok
}
