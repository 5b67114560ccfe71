// Package library keeps the audio files of persisted songs.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidKey is returned for keys that are empty or escape the library root.
var ErrInvalidKey = errors.New("invalid library key")

// DiskLibrary stores files under a local directory as <dir>/<key><ext>.
type DiskLibrary struct {
	dir    string
	logger *zap.Logger
}

func NewDiskLibrary(dir string, logger *zap.Logger) (*DiskLibrary, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	return &DiskLibrary{dir: abs, logger: logger.Named("library")}, nil
}

// Store moves srcPath into the library and returns its new path. The file is
// copied when a rename is not possible, for example across devices.
func (l *DiskLibrary) Store(ctx context.Context, srcPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst, err := l.destination(srcPath, key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("failed to create library directory: %w", err)
	}

	if err := os.Rename(srcPath, dst); err == nil {
		l.logger.Debug("Stored file", zap.String("path", dst))
		return dst, nil
	}

	if err := copyFile(srcPath, dst); err != nil {
		return "", err
	}
	_ = os.Remove(srcPath)

	l.logger.Debug("Stored file by copy", zap.String("path", dst))
	return dst, nil
}

// Exists reports whether a previously returned location is still present.
func (l *DiskLibrary) Exists(_ context.Context, location string) bool {
	if location == "" {
		return false
	}
	info, err := os.Stat(location)
	return err == nil && info.Mode().IsRegular()
}

func (l *DiskLibrary) destination(srcPath, key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.dir, clean+filepath.Ext(srcPath)), nil
}

// copyFile writes through a temporary sibling so readers never see a partial file.
func copyFile(srcPath, dst string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".incoming-*")
	if err != nil {
		return fmt.Errorf("failed to create library file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to copy into library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close library file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move library file: %w", err)
	}
	return nil
}
