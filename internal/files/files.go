// Package files stores uploaded session recordings and materials.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Store saves one file under dir and returns the path it was saved at.
// Remove deletes a path returned by Save.
type Store interface {
	Save(ctx context.Context, dir, name string, r io.Reader) (string, error)
	Remove(ctx context.Context, path string) error
}

// Local writes files below Root on the local disk.
type Local struct {
	Root string
	// MaxBytes limits a single file; zero means no limit.
	MaxBytes int64
}

func NewLocal(root string, maxBytes int64) *Local {
	return &Local{Root: root, MaxBytes: maxBytes}
}

var ErrTooLarge = errors.New("file too large")

func (l *Local) Save(ctx context.Context, dir, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(l.Root, filepath.Clean("/"+dir))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	fileName := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + cleanName(name)
	path := filepath.Join(target, fileName)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", fileName, err)
	}

	src := r
	if l.MaxBytes > 0 {
		src = io.LimitReader(r, l.MaxBytes+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && l.MaxBytes > 0 && n > l.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// ErrOutsideRoot is returned by Remove for a path not below Root.
var ErrOutsideRoot = errors.New("path outside upload root")

// Remove deletes a stored file. A file already gone is not an error.
func (l *Local) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := filepath.Rel(filepath.Clean(l.Root), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func cleanName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}
