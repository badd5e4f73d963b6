package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// SupportedVersions is the default bundle schema constraint.
const SupportedVersions = "^1.0.0"

// Loader loads and caches pattern bundles from a directory.
type Loader struct {
	mu         sync.RWMutex
	bundles    map[string]*Bundle // name -> bundle
	bundleDir  string
	constraint *semver.Constraints
	onReload   func(*Bundle)
}

// NewLoader creates a loader watching the given directory, accepting
// bundle versions within SupportedVersions.
func NewLoader(bundleDir string) (*Loader, error) {
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return nil, err
	}
	return &Loader{
		bundles:    make(map[string]*Bundle),
		bundleDir:  bundleDir,
		constraint: c,
	}, nil
}

// OnReload registers a callback invoked when a bundle is loaded or
// reloaded.
func (l *Loader) OnReload(fn func(*Bundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every .json bundle file from the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return fmt.Errorf("bundle: read dir %s: %w", l.bundleDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(l.bundleDir, entry.Name())
		if err := l.LoadFile(path); err != nil {
			return fmt.Errorf("bundle: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile loads a single bundle file, validating its version.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bundle: read %s: %w", path, err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("bundle: parse %s: %w", path, err)
	}
	if b.Name == "" {
		return fmt.Errorf("bundle: %s: missing name", path)
	}
	if err := b.CheckVersion(l.constraint); err != nil {
		return err
	}

	l.mu.Lock()
	l.bundles[b.Name] = &b
	cb := l.onReload
	l.mu.Unlock()

	if cb != nil {
		cb(&b)
	}
	return nil
}

// Get returns a loaded bundle by name.
func (l *Loader) Get(name string) (*Bundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[name]
	return b, ok
}

// List returns the loaded bundles.
func (l *Loader) List() []*Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Bundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		out = append(out, b)
	}
	return out
}
