package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/notargets/femodel/fem"
)

// Prefix is the key prefix a model is published under.
func Prefix(m *fem.Model) string {
	return m.Name + "/" + m.ID.String() + "/"
}

// Publish uploads every regular file of the model directory and returns
// the key prefix. A model id can be published once; publishing it again
// fails with ErrExists.
func Publish(ctx context.Context, store Store, m *fem.Model) (string, error) {
	entries, err := os.ReadDir(m.Dir())
	if err != nil {
		return "", err
	}
	prefix := Prefix(m)
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		if err := putFile(ctx, store, prefix+e.Name(), filepath.Join(m.Dir(), e.Name())); err != nil {
			return "", err
		}
	}
	return prefix, nil
}

func putFile(ctx context.Context, store Store, key, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := store.Put(ctx, key, f); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Fetch downloads the blobs under prefix into dir, one file per key base
// name, and returns the written paths. Load the model with
// fem.Load(name, filepath.Dir(dir)) when dir is named after it.
func Fetch(ctx context.Context, store Store, prefix, dir string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	infos, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: nothing under %q", ErrNotFound, prefix)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, info := range infos {
		name := path.Base(info.Key)
		if strings.Contains(strings.TrimPrefix(info.Key, prefix), "/") {
			// Nested keys do not belong to a model directory.
			continue
		}
		p := filepath.Join(dir, name)
		if err := getFile(ctx, store, info.Key, p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func getFile(ctx context.Context, store Store, key, p string) error {
	r, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()
	tmp, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}
