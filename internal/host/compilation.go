package host

import (
	"fmt"
	"path"
	"sync"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/smupload/internal/assets"
)

// Compilation is one finished build pass: the chunk snapshot plus the emitted
// files, read from fs. Errors and warnings pushed by plugins are collected.
type Compilation struct {
	snapshot *assets.Snapshot
	fs       afero.Fs

	mu       sync.Mutex
	errors   []error
	warnings []error
}

// NewCompilation wraps a snapshot and the filesystem holding its output.
func NewCompilation(snapshot *assets.Snapshot, fs afero.Fs) *Compilation {
	return &Compilation{snapshot: snapshot, fs: fs}
}

// LoadCompilation reads bundler stats at statsPath from statsFs and serves
// assets from outputFs.
func LoadCompilation(statsFs afero.Fs, statsPath string, outputFs afero.Fs) (*Compilation, error) {
	f, err := statsFs.Open(statsPath)
	if err != nil {
		return nil, fmt.Errorf("opening stats: %w", err)
	}
	defer f.Close()

	snap, err := assets.ParseStats(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", statsPath, err)
	}
	return NewCompilation(snap, outputFs), nil
}

func (c *Compilation) Snapshot() *assets.Snapshot {
	return c.snapshot
}

// Asset returns the emitted bytes of name, relative to the output root.
func (c *Compilation) Asset(name string) ([]byte, error) {
	data, err := afero.ReadFile(c.fs, path.Clean("/"+name))
	if err != nil {
		return nil, fmt.Errorf("reading asset %s: %w", name, err)
	}
	return data, nil
}

func (c *Compilation) AddError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *Compilation) AddWarning(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, err)
}

// Errors returns a copy of the collected errors.
func (c *Compilation) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errors...)
}

// Warnings returns a copy of the collected warnings.
func (c *Compilation) Warnings() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.warnings...)
}
