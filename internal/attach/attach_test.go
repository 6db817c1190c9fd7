// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pngHeader is the 8-byte PNG signature followed by padding.
var pngHeader = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 32)...)

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Supported(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantMime string
	}{
		{"notes.txt", []byte("hello"), "text/plain"},
		{"README.md", []byte("# title"), "text/markdown"},
		{"main.go", []byte("package main"), "text/x-go"},
		{"image.png", pngHeader, "image/png"},
		{"noext", pngHeader, "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write(t, tt.name, tt.data)
			a, err := Load(path, 1024)
			if err != nil {
				t.Fatalf("Load(%s) error: %v", tt.name, err)
			}
			if a.MimeType != tt.wantMime {
				t.Errorf("MimeType = %q, want %q", a.MimeType, tt.wantMime)
			}
			if a.FileName != tt.name {
				t.Errorf("FileName = %q, want %q", a.FileName, tt.name)
			}
			if a.Size != int64(len(tt.data)) {
				t.Errorf("Size = %d, want %d", a.Size, len(tt.data))
			}
			decoded, _ := base64.StdEncoding.DecodeString(a.Base64())
			if string(decoded) != string(tt.data) {
				t.Errorf("Base64 round trip mismatch")
			}
		})
	}
}

func TestLoad_Rejections(t *testing.T) {
	dir := t.TempDir()
	big := write(t, "big.txt", make([]byte, 2048))
	exe := write(t, "tool.exe", []byte("MZ\x90\x00binary"))

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "missing.txt"), ErrNotFound},
		{"directory", dir, ErrIsDirectory},
		{"too large", big, ErrTooLarge},
		{"unsupported", exe, ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, 1024)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			var fe *FileError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not *FileError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad_NoLimit(t *testing.T) {
	path := write(t, "big.txt", make([]byte, 4096))
	if _, err := Load(path, 0); err != nil {
		t.Errorf("Load with no limit: %v", err)
	}
}

// growingReader reports no fixed size and keeps producing bytes, like a
// file appended to after it was checked.
type growingReader struct{ read int64 }

func (g *growingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	g.read += int64(len(p))
	return len(p), nil
}

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		max     int64
		want    string
		wantErr error
	}{
		{"under limit", "abc", 4, "abc", nil},
		{"at limit", "abcd", 4, "abcd", nil},
		{"over limit", "abcde", 4, "", ErrTooLarge},
		{"no limit", "abcdef", 0, "abcdef", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readLimited(strings.NewReader(tt.input), tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("readLimited() error = %v, want %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("readLimited() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLimited_StopsOnUnboundedSource(t *testing.T) {
	src := &growingReader{}
	if _, err := readLimited(src, 1024); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("readLimited() error = %v, want ErrTooLarge", err)
	}
	if src.read > 64*1024 {
		t.Errorf("read %d bytes from an unbounded source, want the read capped near the limit", src.read)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{10 << 20, "10.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.n); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
