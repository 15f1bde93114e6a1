package ingress

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// readOffset returns the persisted long-poll offset cursor, or 0 if path
// does not yet exist or is unparseable.
func readOffset(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return n
}

// writeOffset atomically replaces the offset file's contents, writing to a
// temp file in the same directory then renaming over the target (spec.md
// §6 "a single integer as text, replaced atomically").
func writeOffset(path string, offset int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write offset: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".offset-*")
	if err != nil {
		return fmt.Errorf("write offset: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(strconv.Itoa(offset)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write offset: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write offset: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write offset: rename: %w", err)
	}
	return nil
}
