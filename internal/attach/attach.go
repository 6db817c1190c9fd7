// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach loads files that are sent to the model as inline data.
//
// An attachment is validated before any request is built: files that are
// missing, unreadable, larger than the configured limit or of an
// unsupported MIME type produce a *FileError and nothing is sent.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// Sentinel reasons carried by FileError.
var (
	ErrNotFound        = errors.New("file not found")
	ErrUnreadable      = errors.New("file is not readable")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrIsDirectory     = errors.New("path is a directory")
)

// FileError reports why an attachment was rejected.
type FileError struct {
	Path   string
	Reason error  // One of the sentinels above
	Detail string // Extra context such as the size or detected type
}

func (e *FileError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Path, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Reason)
}

func (e *FileError) Unwrap() error {
	return e.Reason
}

// =============================================================================
// ATTACHMENT
// =============================================================================

// FileAttachment is a validated file ready to be sent as an inline data part.
// It is transient: built on upload, sent with the next prompt, then dropped.
type FileAttachment struct {
	FileName string
	MimeType string
	Size     int64
	Data     []byte
}

// Base64 returns the standard base64 encoding of the file contents.
func (a FileAttachment) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// String describes the attachment for status lines.
func (a FileAttachment) String() string {
	return fmt.Sprintf("%s (%s, %s)", a.FileName, a.MimeType, FormatSize(a.Size))
}

// supportedTypes lists MIME types accepted as inline data.
var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
	"image/gif":  true,

	"application/pdf":  true,
	"application/json": true,

	"text/plain":      true,
	"text/markdown":   true,
	"text/csv":        true,
	"text/html":       true,
	"text/xml":        true,
	"text/x-python":   true,
	"text/x-go":       true,
	"text/javascript": true,

	"audio/mpeg": true,
	"audio/wav":  true,
	"audio/ogg":  true,
	"audio/flac": true,

	"video/mp4": true,
}

// extensionTypes covers extensions the system MIME table often lacks.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".py":       "text/x-python",
	".go":       "text/x-go",
	".js":       "text/javascript",
	".mjs":      "text/javascript",
	".csv":      "text/csv",
	".txt":      "text/plain",
	".log":      "text/plain",
	".heic":     "image/heic",
	".heif":     "image/heif",
	".webp":     "image/webp",
	".flac":     "audio/flac",
	".wav":      "audio/wav",
	".mp3":      "audio/mpeg",
	".ogg":      "audio/ogg",
}

// SupportedTypes returns the accepted MIME types, sorted.
func SupportedTypes() []string {
	types := make([]string, 0, len(supportedTypes))
	for t := range supportedTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported reports whether mimeType may be attached.
func IsSupported(mimeType string) bool {
	return supportedTypes[mimeType]
}

// Load validates and reads the file at path.
// Checks run in order: existence, directory, size limit, MIME type.
// The file body is only read once every check has passed.
func Load(path string, maxBytes int64) (FileAttachment, error) {
	path = util.ExpandHome(path)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileAttachment{}, &FileError{Path: path, Reason: ErrNotFound}
		}
		return FileAttachment{}, &FileError{Path: path, Reason: ErrUnreadable, Detail: err.Error()}
	}
	if info.IsDir() {
		return FileAttachment{}, &FileError{Path: path, Reason: ErrIsDirectory}
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return FileAttachment{}, &FileError{
			Path:   path,
			Reason: ErrTooLarge,
			Detail: fmt.Sprintf("%s, limit %s", FormatSize(info.Size()), FormatSize(maxBytes)),
		}
	}

	mimeType, err := DetectType(path)
	if err != nil {
		return FileAttachment{}, &FileError{Path: path, Reason: ErrUnreadable, Detail: err.Error()}
	}
	if !IsSupported(mimeType) {
		return FileAttachment{}, &FileError{Path: path, Reason: ErrUnsupportedType, Detail: mimeType}
	}

	f, err := os.Open(path)
	if err != nil {
		return FileAttachment{}, &FileError{Path: path, Reason: ErrUnreadable, Detail: err.Error()}
	}
	defer f.Close()

	// The file may have grown since Stat
	data, err := readLimited(f, maxBytes)
	if errors.Is(err, ErrTooLarge) {
		return FileAttachment{}, &FileError{
			Path:   path,
			Reason: ErrTooLarge,
			Detail: fmt.Sprintf("over limit %s", FormatSize(maxBytes)),
		}
	}
	if err != nil {
		return FileAttachment{}, &FileError{Path: path, Reason: ErrUnreadable, Detail: err.Error()}
	}

	return FileAttachment{
		FileName: filepath.Base(path),
		MimeType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

// readLimited reads r to EOF, failing with ErrTooLarge past maxBytes.
// A non-positive maxBytes reads without a limit.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// DetectType returns the MIME type of the file at path: by extension first,
// then by sniffing the first 512 bytes.
func DetectType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return baseType(t), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return baseType(http.DetectContentType(head[:n])), nil
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}

// FormatSize renders a byte count using binary units.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
