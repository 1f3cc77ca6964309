// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"simple child", "job-abc/out.mp4", false},
		{"dot segments collapse", "a/../b.mp4", false},
		{"escape via dotdot", "../outside.mp4", true},
		{"bare dotdot", "..", true},
		{"absolute rejected", "/etc/passwd", true},
		{"backslash rejected", "a\\b.mp4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.rel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(got))
		})
	}
}

func TestConfineRelPath_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "leak")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ConfineRelPath(root, "leak/file.mp4")
	assert.Error(t, err)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, MoveFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoFileExists(t, src)
}

func TestMoveFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, MoveFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")))
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.NoError(t, IsRegularFile(file))
	assert.Error(t, IsRegularFile(dir))
	assert.Error(t, IsRegularFile(filepath.Join(dir, "missing.mp4")))
}
