package step

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/graph"
	"github.com/FocuswithJustin/ifcslim/internal/fileutil"
)

// Compression specifies the stream compression of an IFC file.
type Compression string

const (
	// CompressionNone writes plain text.
	CompressionNone Compression = "none"
	// CompressionXZ uses XZ/LZMA2 compression (best ratio).
	CompressionXZ Compression = "xz"
	// CompressionGzip uses gzip compression (stdlib, faster).
	CompressionGzip Compression = "gzip"
)

// ParseCompression validates a compression name. The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(s)) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionXZ:
		return CompressionXZ, nil
	case CompressionGzip, "gz":
		return CompressionGzip, nil
	}
	return "", errors.NewUnsupported("compression", s)
}

// Extension returns the file suffix conventionally used for c.
func (c Compression) Extension() string {
	switch c {
	case CompressionXZ:
		return ".xz"
	case CompressionGzip:
		return ".gz"
	}
	return ""
}

// DetectCompression inspects the magic bytes at the start of data.
func DetectCompression(magic []byte) Compression {
	if len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return CompressionGzip
	}
	if len(magic) >= 6 && bytes.Equal(magic[:6], []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}) {
		return CompressionXZ
	}
	return CompressionNone
}

// NewReader wraps r with the decompressor matching its magic bytes.
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(6)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	switch DetectCompression(magic) {
	case CompressionGzip:
		return gzip.NewReader(br)
	case CompressionXZ:
		return xz.NewReader(br)
	}
	return br, nil
}

// ReadFile parses the IFC file at path, transparently decompressing xz or
// gzip input. It also returns the size of the file on disk.
func ReadFile(path string) (*graph.Graph, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.NewIO("open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, errors.NewIO("stat", path, err)
	}

	r, err := NewReader(f)
	if err != nil {
		return nil, 0, errors.NewIO("decompress", path, err)
	}
	g, err := Parse(r, filepath.Base(path))
	if err != nil {
		return nil, 0, err
	}
	return g, info.Size(), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with the compressor for c. Closing the result flushes the
// compressor but not w.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionXZ:
		return xz.NewWriter(w)
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	}
	return nil, errors.NewUnsupported("compression", string(c))
}

// WriteFile writes g to path atomically using compression c and returns the
// size of the written file.
func WriteFile(path string, g *graph.Graph, c Compression) (int64, error) {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		zw, err := NewWriter(w, c)
		if err != nil {
			return err
		}
		if _, err := Write(zw, g); err != nil {
			return errors.NewIO("write", path, err)
		}
		if err := zw.Close(); err != nil {
			return errors.NewIO("compress", path, err)
		}
		return nil
	})
}
