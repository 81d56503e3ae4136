// Package replica tracks the replicas this process can write to. Each replica
// is a directory under a shared root; its name is the host part of its origin.
package replica

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/storage"
	"github.com/starford/agora/internal/urlnorm"
)

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{0,62}$`)

// ValidName reports whether name can be used as a replica directory as is.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// Registry maps canonical origins to writable replica directories.
type Registry struct {
	root string

	mu       sync.RWMutex
	replicas map[string]*storage.FS
}

// Open creates root if needed and registers every subdirectory found in it.
func Open(root string) (*Registry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("replica: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("replica: create root: %w", err)
	}

	r := &Registry{root: abs, replicas: make(map[string]*storage.FS)}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("replica: read root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || !nameRe.MatchString(e.Name()) {
			continue
		}
		if _, err := r.register(e.Name()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Root returns the absolute directory that holds all replicas.
func (r *Registry) Root() string {
	return r.root
}

// Create makes a new replica directory named name and returns its origin.
// Creating an existing replica returns the existing origin.
func (r *Registry) Create(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if err := validation.Validate(name,
		validation.Required,
		validation.Match(nameRe).Error("must be lowercase letters, digits, dots or dashes"),
	); err != nil {
		return "", fmt.Errorf("replica: name %q: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Join(r.root, name), 0o755); err != nil {
		return "", fmt.Errorf("replica: create %s: %w", name, err)
	}
	return r.register(name)
}

func (r *Registry) register(name string) (string, error) {
	fs, err := storage.NewFS(filepath.Join(r.root, name))
	if err != nil {
		return "", fmt.Errorf("replica: open %s: %w", name, err)
	}
	origin := urlnorm.CanonicalOrigin(urlnorm.PeerScheme + "://" + name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.replicas[origin]; !ok {
		r.replicas[origin] = fs
	}
	return origin, nil
}

// Lookup returns the replica that owns ref's origin. It fails with
// apperr.ErrNotIndexed when that origin is not registered here.
func (r *Registry) Lookup(ref string) (storage.Provider, error) {
	origin := urlnorm.CanonicalOrigin(ref)
	r.mu.RLock()
	fs, ok := r.replicas[origin]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("replica: %s: %w", origin, apperr.ErrNotIndexed)
	}
	return fs, nil
}

// Has reports whether ref's origin is a registered replica.
func (r *Registry) Has(ref string) bool {
	_, err := r.Lookup(ref)
	return !errors.Is(err, apperr.ErrNotIndexed)
}

// Origins returns the registered origins in sorted order.
func (r *Registry) Origins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.replicas))
	for o := range r.replicas {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Resolve maps an absolute file path inside the registry root to the owning
// origin and the record path relative to that replica.
func (r *Registry) Resolve(absPath string) (origin, rel string, ok bool) {
	relToRoot, err := filepath.Rel(r.root, absPath)
	if err != nil || relToRoot == "." || strings.HasPrefix(relToRoot, "..") {
		return "", "", false
	}
	parts := strings.SplitN(filepath.ToSlash(relToRoot), "/", 2)
	origin = urlnorm.CanonicalOrigin(urlnorm.PeerScheme + "://" + parts[0])
	if !r.Has(origin) {
		return "", "", false
	}
	if len(parts) == 2 {
		rel = parts[1]
	}
	return origin, rel, true
}
