// Package secureio provides secure file system operations with proper
// permission and size limits. The session engine uses AppendLine for
// its transcript log.
package secureio

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// MaxFileSize is the maximum size for individual files (100MB).
	MaxFileSize = 100 * 1024 * 1024
	// SecureFilePerms are the permissions for secure files (owner read/write only).
	SecureFilePerms = 0600
	// SecureDirPerms are the permissions for secure directories (owner read/write/execute only).
	SecureDirPerms = 0700
	// TempDirPrefix is the prefix for session temp directories.
	TempDirPrefix = "nodedbg-"
)

// CreateSecureTempDir creates a temporary directory with secure
// permissions and a random name.
func CreateSecureTempDir(prefix string) (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	if prefix == "" {
		prefix = TempDirPrefix
	}

	dirName := fmt.Sprintf("%s%s", prefix, hex.EncodeToString(randomBytes))
	tempDir := filepath.Join(os.TempDir(), dirName)

	if err := os.MkdirAll(tempDir, SecureDirPerms); err != nil {
		return "", fmt.Errorf("creating secure directory: %w", err)
	}
	if err := os.Chmod(tempDir, SecureDirPerms); err != nil {
		os.RemoveAll(tempDir)
		return "", fmt.Errorf("setting secure permissions: %w", err)
	}

	return tempDir, nil
}

// SecureWriteFile writes data to a file with secure permissions using
// a temp-file-then-rename atomic write.
func SecureWriteFile(filename string, data []byte) error {
	if len(data) > MaxFileSize {
		return fmt.Errorf("data too large: %d bytes (max: %d)", len(data), MaxFileSize)
	}

	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tempFile, err := os.CreateTemp(dir, base+".tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempName := tempFile.Name()
	defer func() {
		if err != nil {
			os.Remove(tempName)
		}
	}()

	if err = tempFile.Chmod(SecureFilePerms); err != nil {
		tempFile.Close()
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if _, err = tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err = tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("syncing data: %w", err)
	}
	if err = tempFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tempName, filename); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}

	return nil
}

// AppendLine appends a single line to filename, creating it with
// secure permissions if it doesn't exist. Used for the append-only
// CDP/tool-call transcript.
func AppendLine(filename string, line []byte) error {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, SecureFilePerms)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("writing transcript line: %w", err)
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		if _, err := f.Write([]byte("\n")); err != nil {
			return fmt.Errorf("writing transcript newline: %w", err)
		}
	}
	return nil
}

// SecureRemoveAll removes files and directories, verifying removal succeeded.
func SecureRemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("failed to remove path: %s", path)
	}
	return nil
}

// CleanupHandler accumulates paths created during a session for
// best-effort removal on teardown.
type CleanupHandler struct {
	paths []string
}

// NewCleanupHandler creates an empty CleanupHandler.
func NewCleanupHandler() *CleanupHandler {
	return &CleanupHandler{}
}

// AddPath registers a path to be removed on Cleanup.
func (c *CleanupHandler) AddPath(path string) {
	c.paths = append(c.paths, path)
}

// Cleanup removes all registered paths, collecting (not stopping on) errors.
func (c *CleanupHandler) Cleanup() error {
	var firstErr error
	for _, path := range c.paths {
		if err := SecureRemoveAll(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.paths = nil
	return firstErr
}
