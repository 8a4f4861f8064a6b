package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "nested", "deep", "out.txt")

	n, err := WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "Hello, World!")
		return err
	})
	if err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	if n != 13 {
		t.Errorf("size = %d, want 13", n)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(content) != "Hello, World!" {
		t.Errorf("content mismatch: got %q", content)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestWriteAtomic_FailureKeepsOriginal(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "out.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	boom := errors.New("boom")
	_, err := WriteAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "original" {
		t.Errorf("original file changed to %q", content)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary file left behind: %v", entries)
	}
}

func TestWriteAtomic_Replace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	for _, s := range []string{"first", "second"} {
		if _, err := WriteAtomic(path, func(w io.Writer) error {
			_, err := io.WriteString(w, s)
			return err
		}); err != nil {
			t.Fatalf("WriteAtomic: %v", err)
		}
	}
	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("content = %q, want second", content)
	}
}
