// Package filesystem implements the reference ObjectStore driver: a local
// directory tree, one subdirectory per container. This is the only storage
// driver implementation this repository carries — cloud blob drivers are
// external collaborators per spec.md §1 — but it exercises the full
// objectstore.Store/Container/ChunkIterator contract end-to-end the way a
// real driver would.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/objectstore"
)

// Store is a filesystem-backed objectstore.Store rooted at a directory.
// Each container is a subdirectory of Root.
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating the directory if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: creating root %q: %w", root, err)
	}
	return &Store{Root: root}, nil
}

func (s *Store) containerPath(name string) string {
	return filepath.Join(s.Root, name)
}

// GetContainer implements objectstore.Store.
func (s *Store) GetContainer(ctx context.Context, name string) (objectstore.Container, error) {
	p := s.containerPath(name)
	fi, err := os.Stat(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("filesystem: container %q: %w", name, objectstore.ErrContainerNotFound)
	case err != nil:
		return nil, err
	case !fi.IsDir():
		return nil, fmt.Errorf("filesystem: %q is not a directory", p)
	}
	return &container{name: name, dir: p}, nil
}

// CreateContainer implements objectstore.Store.
func (s *Store) CreateContainer(ctx context.Context, name string) (objectstore.Container, error) {
	p := s.containerPath(name)
	if _, err := os.Stat(p); err == nil {
		return nil, objectstore.ErrContainerExists
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: creating container %q: %w", name, err)
	}
	return &container{name: name, dir: p}, nil
}

// IsRetryable classifies transient filesystem errors: spec.md §4.3 leaves
// this to each driver. A local filesystem has essentially no transient
// failure mode worth retrying (no network, no rate limits); only
// EAGAIN-shaped "too many open files" is worth a retry.
func (s *Store) IsRetryable(err error) bool {
	return isRetryableFSError(err)
}

type container struct {
	name string
	dir  string
}

func (c *container) Name() string { return c.name }

func (c *container) objectPath(name string) string {
	return filepath.Join(c.dir, filepath.FromSlash(name))
}

func (c *container) GetObject(ctx context.Context, name string) (objectstore.Object, error) {
	p := c.objectPath(name)
	fi, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("filesystem: object %q: %w", name, atbu.ErrObjectDoesNotExist)
	}
	if err != nil {
		return nil, err
	}
	return &object{name: name, size: fi.Size()}, nil
}

func (c *container) DeleteObject(ctx context.Context, name string) error {
	err := os.Remove(c.objectPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (c *container) ListObjects(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	var out []objectstore.Object
	err := filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, &object{name: rel, size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info().Name < out[j].Info().Name })
	return out, nil
}

func (c *container) UploadStream(ctx context.Context, name string, src objectstore.ChunkIterator, sourcePath string) error {
	p := c.objectPath(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".part"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		f.Close()
		if !ok {
			os.Remove(tmp)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := src.Next(ctx)
		if err != nil && err != io.EOF {
			return err
		}
		if len(chunk) > 0 {
			if _, werr := f.Write(chunk); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if len(chunk) == 0 {
			break
		}
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		return err
	}
	ok = true
	return nil
}

func (c *container) DownloadStream(ctx context.Context, name string, chunkSize int) (objectstore.ChunkIterator, error) {
	if chunkSize <= 0 {
		chunkSize = objectstore.DefaultDownloadChunkSize
	}
	f, err := os.Open(c.objectPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("filesystem: object %q: %w", name, atbu.ErrObjectDoesNotExist)
	}
	if err != nil {
		return nil, err
	}
	return &fileChunkIterator{f: f, chunkSize: chunkSize}, nil
}

func (c *container) UploadChunkSize() int   { return objectstore.DefaultUploadChunkSize }
func (c *container) DownloadChunkSize() int { return objectstore.DefaultDownloadChunkSize }

type object struct {
	name string
	size int64
}

func (o *object) Info() objectstore.ObjectInfo {
	return objectstore.ObjectInfo{Name: o.name, Size: o.size}
}

type fileChunkIterator struct {
	f         *os.File
	chunkSize int
	sentEmpty bool
	done      bool
}

func (it *fileChunkIterator) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.done {
		return nil, io.EOF
	}
	buf := make([]byte, it.chunkSize)
	n, err := it.f.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF || n == 0 {
		it.f.Close()
		it.done = true
		if it.sentEmpty {
			return nil, io.EOF
		}
		it.sentEmpty = true
		return nil, nil
	}
	if err != nil {
		it.f.Close()
		return nil, err
	}
	return buf[:n], nil
}

