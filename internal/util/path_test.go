package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scan.tiff")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name   string
		path   string
		exists bool
		isDir  bool
	}{
		{"directory", dir, true, true},
		{"file", file, true, false},
		{"missing", filepath.Join(dir, "nope"), false, false},
		{"empty path", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, isDir, err := CheckDirectory(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.exists, exists)
			assert.Equal(t, tt.isDir, isDir)
		})
	}
}

func TestCheckDirectoryFollowsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	exists, isDir, err := CheckDirectory(link)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, isDir)
}

func TestIsHidden(t *testing.T) {
	for name, want := range map[string]bool{
		".git":      true,
		".env":      true,
		"photo.jpg": false,
		"a.b":       false,
		".":         false,
		"..":        false,
	} {
		assert.Equal(t, want, IsHidden(name), name)
	}
}

func TestIsSystemFile(t *testing.T) {
	for _, name := range []string{".DS_Store", "Thumbs.db", "desktop.ini", "$RECYCLE.BIN"} {
		assert.True(t, IsSystemFile(name), name)
	}
	assert.False(t, IsSystemFile("report.pdf"))
}
