package secureio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateSecureTempDir(t *testing.T) {
	dir, err := CreateSecureTempDir("test-")
	if err != nil {
		t.Fatalf("CreateSecureTempDir() error = %v", err)
	}
	defer os.RemoveAll(dir)

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("failed to stat directory: %v", err)
	}
	if info.Mode().Perm() != SecureDirPerms {
		t.Errorf("directory permissions = %o, expected %o", info.Mode().Perm(), SecureDirPerms)
	}
	if !strings.HasPrefix(filepath.Base(dir), "test-") {
		t.Errorf("directory name does not contain prefix: %s", dir)
	}
}

func TestSecureWriteFile(t *testing.T) {
	dir, err := CreateSecureTempDir("test-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	testData := []byte("test data")
	testFile := filepath.Join(dir, "test.txt")

	if err := SecureWriteFile(testFile, testData); err != nil {
		t.Fatalf("SecureWriteFile() error = %v", err)
	}

	info, err := os.Stat(testFile)
	if err != nil {
		t.Fatalf("failed to stat file: %v", err)
	}
	if info.Mode().Perm() != SecureFilePerms {
		t.Errorf("file permissions = %o, expected %o", info.Mode().Perm(), SecureFilePerms)
	}

	content, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(content) != string(testData) {
		t.Errorf("file content = %s, expected %s", string(content), string(testData))
	}
}

func TestSecureWriteFileTooBig(t *testing.T) {
	dir, err := CreateSecureTempDir("test-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	testData := make([]byte, MaxFileSize+1)
	testFile := filepath.Join(dir, "test.txt")

	if err := SecureWriteFile(testFile, testData); err == nil {
		t.Error("SecureWriteFile() should have failed for oversized file")
	}
}

func TestAppendLine(t *testing.T) {
	dir, err := CreateSecureTempDir("test-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	transcript := filepath.Join(dir, "transcript.jsonl")
	if err := AppendLine(transcript, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("AppendLine() error = %v", err)
	}
	if err := AppendLine(transcript, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("AppendLine() error = %v", err)
	}

	content, err := os.ReadFile(transcript)
	if err != nil {
		t.Fatalf("failed to read transcript: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(content))
	}
}

func TestCleanupHandler(t *testing.T) {
	dir, err := CreateSecureTempDir("test-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	h := NewCleanupHandler()
	h.AddPath(dir)
	if err := h.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected directory to be removed, stat err = %v", err)
	}
}
