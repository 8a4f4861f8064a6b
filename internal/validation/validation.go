// Package validation checks user-supplied paths and input files before the
// pipeline touches them.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Limits on user input.
const (
	// MaxFileSize is the maximum accepted input size (4 GiB).
	MaxFileSize = 4 << 30
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrFileTooLarge     = errors.New("file too large")
	ErrUnsupportedInput = errors.New("unsupported input format")
)

// SanitizePath validates a path relative to baseDir and ensures it does not
// escape it. Returns the cleaned relative path.
func SanitizePath(baseDir, userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}
	if len(userPath) > MaxPathLength {
		return "", ErrPathTooLong
	}

	cleanPath := filepath.Clean(userPath)
	if strings.Contains(cleanPath, "..") {
		return "", ErrPathTraversal
	}
	if filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return "", ErrPathTraversal
	}

	return cleanPath, nil
}

// ValidateFilename checks that filename is a single safe path element.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// ValidatePath checks a path for length limits and invalid characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// FileType is a detected input file type.
type FileType string

const (
	FileTypeSTEP    FileType = "step"
	FileTypeXZ      FileType = "xz"
	FileTypeGzip    FileType = "gzip"
	FileTypeZip     FileType = "zip"
	FileTypeSQLite  FileType = "sqlite"
	FileTypeUnknown FileType = "unknown"
)

// stepMagic starts every ISO 10303-21 exchange file.
const stepMagic = "ISO-10303-21;"

var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeGzip, []byte{0x1f, 0x8b}},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{FileTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}},
	{FileTypeSQLite, []byte("SQLite format 3")},
}

// ValidateFileType reads the head of an input and checks that its content
// agrees with the extension of filename. It returns the detected type.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileTypeFromMagic(buf)
	expected := detectFileTypeFromExtension(filename)

	// Compression wraps the STEP text, so a compressed .ifc is fine.
	if expected == FileTypeSTEP && (detected == FileTypeXZ || detected == FileTypeGzip) {
		return detected, nil
	}
	if expected != FileTypeUnknown && detected != FileTypeUnknown && expected != detected {
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expected, detected)
	}
	if detected == FileTypeUnknown && expected == FileTypeSTEP && isLikelyText(buf) {
		// Some exporters emit leading junk before the header.
		return FileTypeSTEP, nil
	}
	return detected, nil
}

// ValidateInput checks that path names a readable IFC input this tool can
// parse: plain STEP text, or STEP compressed with xz or gzip.
func ValidateInput(path string) (FileType, error) {
	if err := ValidatePath(path); err != nil {
		return FileTypeUnknown, err
	}
	f, err := os.Open(path)
	if err != nil {
		return FileTypeUnknown, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileTypeUnknown, err
	}
	if info.IsDir() {
		return FileTypeUnknown, fmt.Errorf("%w: %s is a directory", ErrUnsupportedInput, path)
	}
	if info.Size() > MaxFileSize {
		return FileTypeUnknown, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	ft, err := ValidateFileType(f, path)
	if err != nil {
		return ft, err
	}
	switch ft {
	case FileTypeSTEP, FileTypeXZ, FileTypeGzip:
		return ft, nil
	case FileTypeZip:
		return ft, fmt.Errorf("%w: ifcZIP archives must be extracted first", ErrUnsupportedInput)
	}
	return ft, fmt.Errorf("%w: %s", ErrUnsupportedInput, ft)
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.fileType
		}
	}
	text := bytes.TrimPrefix(buf, []byte("\xef\xbb\xbf"))
	text = bytes.TrimLeft(text, " \t\r\n")
	if bytes.HasPrefix(text, []byte(stepMagic)) {
		return FileTypeSTEP
	}
	return FileTypeUnknown
}

func detectFileTypeFromExtension(filename string) FileType {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xz"):
		return FileTypeXZ
	case strings.HasSuffix(lower, ".gz"):
		return FileTypeGzip
	}
	switch filepath.Ext(lower) {
	case ".ifc", ".stp", ".step", ".p21":
		return FileTypeSTEP
	case ".ifczip", ".zip":
		return FileTypeZip
	case ".sqlite", ".db", ".sqlite3":
		return FileTypeSQLite
	}
	return FileTypeUnknown
}

// isLikelyText reports whether buf looks like text rather than binary data.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	printable := 0
	control := 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 {
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
