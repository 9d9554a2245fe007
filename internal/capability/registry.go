package capability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"ouroboros/internal/logging"
)

// Registry stores capabilities as files under one directory and loads them
// through a Backend. A name, once claimed, is never overwritten; every
// lookup reloads from disk.
type Registry struct {
	mu      sync.Mutex
	dir     string
	backend Backend
}

// NewRegistry creates the tools directory if needed and returns a registry
// rooted at it.
func NewRegistry(dir string, backend Backend) (*Registry, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrUnknownBackend)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tools directory: %w", err)
	}
	logging.RegistryDebug("Registry rooted at %s (backend=%s)", dir, backend.Name())
	return &Registry{dir: dir, backend: backend}, nil
}

// Dir returns the tools directory.
func (r *Registry) Dir() string { return r.dir }

// Backend returns the registry's backend.
func (r *Registry) Backend() Backend { return r.backend }

func (r *Registry) path(name string) string {
	return filepath.Join(r.dir, name+"."+r.backend.Extension())
}

// names lists stored capability names, sorted.
func (r *Registry) names() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools directory: %w", err)
	}
	suffix := "." + r.backend.Extension()
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), suffix)
		if validName.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// List loads every stored capability and returns name → "description.
// Params: parameters". Capabilities that fail to load are logged and
// omitted.
func (r *Registry) List(ctx context.Context) (Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.names()
	if err != nil {
		return nil, err
	}

	listing := make(Listing, len(names))
	for _, name := range names {
		h, err := r.load(ctx, name)
		if err != nil {
			logging.Get(logging.CategoryRegistry).Warn("Skipping capability %s: %v", name, err)
			continue
		}
		listing[name] = listingEntry(h.Description, h.Parameters)
	}
	return listing, nil
}

// Names returns the stored capability names without loading them.
func (r *Registry) Names() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names()
}

// Get loads a capability by name (case-insensitive).
func (r *Registry) Get(ctx context.Context, name string) (*Handle, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, n)
}

func (r *Registry) load(ctx context.Context, name string) (*Handle, error) {
	path := r.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}
	source := string(data)

	inst, err := r.backend.Load(ctx, name, path, source)
	if err != nil {
		return nil, err
	}

	return &Handle{
		Capability: Capability{
			Name:        name,
			Description: inst.Description(),
			Parameters:  inst.Parameters(),
			Source:      source,
			Validated:   r.check(source).Safe,
			Digest:      Digest(source),
		},
		instance: inst,
	}, nil
}

// closeFile is replaced in tests.
var closeFile = (*os.File).Close

// Add persists source under name. It returns false without writing when
// the name is already taken.
func (r *Registry) Add(ctx context.Context, name, source string) (bool, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path(n), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			logging.Registry("Capability %s already exists; not overwritten", n)
			return false, nil
		}
		return false, fmt.Errorf("failed to create capability file: %w", err)
	}
	_, err = f.WriteString(source)
	if cerr := closeFile(f); err == nil {
		err = cerr
	}
	if err != nil {
		// Release the name so a later Add can claim it.
		_ = os.Remove(r.path(n))
		return false, fmt.Errorf("failed to write capability file: %w", err)
	}

	logging.Registry("Added capability %s (digest=%s)", n, Digest(source)[:12])
	return true, nil
}

// Delete removes a capability file. It returns false when absent.
func (r *Registry) Delete(ctx context.Context, name string) (bool, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path(n)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete capability: %w", err)
	}
	logging.Registry("Deleted capability %s", n)
	return true, nil
}

// Source returns the raw stored text of a capability.
func (r *Registry) Source(name string) (string, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path(n))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, n)
		}
		return "", fmt.Errorf("failed to read capability: %w", err)
	}
	return string(data), nil
}

// Check runs the backend syntax check and, for backends that have one,
// the safety policy.
func (r *Registry) Check(source string) *SafetyReport {
	return r.check(source)
}

func (r *Registry) check(source string) *SafetyReport {
	report := newSafetyReport()
	if err := r.backend.Syntax(source); err != nil {
		return report.fail(ViolationParseError, "", fmt.Sprintf("syntax check failed: %v", err))
	}
	if a, ok := r.backend.(auditor); ok {
		return a.Audit(source)
	}
	return report
}
