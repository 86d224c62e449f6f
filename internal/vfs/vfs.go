// Package vfs is the in-memory file store used by the shell and the HTTP
// API. It is backed by afero so tests and the daemon share one implementation.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrNotDir   = errors.New("not a directory")
	ErrBadName  = errors.New("invalid file name")
)

type Entry struct {
	Name    string    `json:"name" yaml:"name"`
	Path    string    `json:"path" yaml:"path"`
	Size    int64     `json:"size" yaml:"size"`
	IsDir   bool      `json:"is_dir" yaml:"is_dir"`
	ModTime time.Time `json:"modified_at" yaml:"modified_at"`
}

type FS struct {
	mu  sync.RWMutex
	fs  afero.Fs
	cwd string
}

// New wraps fs. A nil fs gets a fresh afero.MemMapFs.
func New(fs afero.Fs) *FS {
	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	return &FS{fs: fs, cwd: "/"}
}

func (f *FS) Cwd() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cwd
}

// resolve turns p into an absolute, cleaned path relative to the cwd.
func (f *FS) resolve(p string) string {
	if p == "" || p == "." {
		return f.cwd
	}
	if !path.IsAbs(p) {
		p = path.Join(f.cwd, p)
	}
	return path.Clean(p)
}

// CreateFile writes content to name relative to the current directory,
// replacing any existing file, and returns the absolute path.
func (f *FS) CreateFile(name, content string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.resolve(name)
	if err := f.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteFile(f.fs, p, []byte(content), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func (f *FS) Mkdir(dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.resolve(dir)
	return p, f.fs.MkdirAll(p, 0o755)
}

func (f *FS) Read(name string) (string, error) {
	f.mu.RLock()
	p := f.resolve(name)
	f.mu.RUnlock()
	b, err := afero.ReadFile(f.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", err
	}
	return string(b), nil
}

// List returns the entries of dir sorted by name.
func (f *FS) List(dir string) ([]Entry, error) {
	f.mu.RLock()
	p := f.resolve(dir)
	f.mu.RUnlock()
	infos, err := afero.ReadDir(f.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, Entry{
			Name:    fi.Name(),
			Path:    path.Join(p, fi.Name()),
			Size:    fi.Size(),
			IsDir:   fi.IsDir(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FS) Chdir(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.resolve(dir)
	ok, err := afero.DirExists(f.fs, p)
	if err != nil {
		return err
	}
	if !ok {
		if exists, _ := afero.Exists(f.fs, p); exists {
			return fmt.Errorf("%w: %s", ErrNotDir, p)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	f.cwd = p
	return nil
}
