// Package testutil holds fixtures shared by package tests: fake media
// bytes and a fake content source server.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func pad(header []byte, size int) []byte {
	if size < len(header) {
		size = len(header)
	}
	out := make([]byte, size)
	copy(out, header)
	for i := len(header); i < size; i++ {
		out[i] = byte(i % 251)
	}
	return out
}

// JPEG returns size bytes that sniff as a JPEG image
func JPEG(size int) []byte {
	return pad([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, size)
}

// PNG returns size bytes that sniff as a PNG image
func PNG(size int) []byte {
	return pad([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, size)
}

// MP4 returns size bytes that sniff as an MP4 video
func MP4(size int) []byte {
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}
	return pad(header, size)
}

// Text returns size bytes of plain text
func Text(size int) []byte {
	return bytes.Repeat([]byte("meow "), size/5+1)[:size]
}

// WriteFile writes data to dir/name and returns the path
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
