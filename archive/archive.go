// Package archive publishes model directories to a blob store and fetches
// them back. Stores are flat key spaces; a model is stored under
// "<name>/<id>/<file>".
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Driver identifies a Store implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverMemory     Driver = "memory"
	DriverS3         Driver = "s3"
)

var (
	ErrExists   = errors.New("archive: blob already exists")
	ErrNotFound = errors.New("archive: blob not found")
)

// Info describes a stored blob.
type Info struct {
	Key  string
	Size int64
}

// Store is a create-only blob store.
type Store interface {
	// Put stores a new blob. Existing keys are never overwritten.
	Put(ctx context.Context, key string, r io.Reader) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the blobs whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Config selects and configures a Store.
type Config struct {
	Driver Driver   `yaml:"driver"`
	Root   string   `yaml:"root,omitempty"` // fs driver
	S3     S3Config `yaml:"s3,omitempty"`
}

// Open returns the store described by cfg. The filesystem driver is the
// default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.Root)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
}

// checkKey rejects keys that could escape a store root.
func checkKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid key %q contains '..'", key)
		}
	}
	return path.Clean(key), nil
}
