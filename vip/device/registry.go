package device

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// Factory creates a driver for path. path has its "Name:" prefix removed.
type Factory func(path string) (Driver, error)

// ProbeFunc tells whether a factory can read path. firstBytes holds the
// beginning of the content when available.
type ProbeFunc func(path string, firstBytes []byte) bool

// Info describes a registered device kind.
type Info struct {
	Name        string
	Description string
	// Filters are file name patterns such as "*.csv"
	Filters []string
	Modes   OpenMode
	Probe   ProbeFunc
	New     Factory
}

// DefaultProbe accepts paths prefixed by "<Name>:" or matching one of the filters.
func (i Info) DefaultProbe(path string, _ []byte) bool {
	if strings.HasPrefix(path, i.Name+":") {
		return true
	}
	base := filepath.Base(path)
	for _, f := range i.Filters {
		if ok, _ := filepath.Match(f, base); ok {
			return true
		}
	}
	return false
}

func (i Info) probe(path string, firstBytes []byte) bool {
	if i.Probe != nil {
		return i.Probe(path, firstBytes)
	}
	return i.DefaultProbe(path, firstBytes)
}

// Registry maps device kinds to their factories. It is owned by the caller.
type Registry struct {
	mu    sync.RWMutex
	infos []Info
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a device kind. Names must be unique.
func (r *Registry) Register(info Info) error {
	if info.Name == "" || info.New == nil {
		return fmt.Errorf("register device kind %q: name and factory are required", info.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.infos, func(i Info) bool { return i.Name == info.Name }) {
		return fmt.Errorf("%w: %s", ErrDuplicateFactory, info.Name)
	}
	r.infos = append(r.infos, info)
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = slices.DeleteFunc(r.infos, func(i Info) bool { return i.Name == name })
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.infos))
	for _, i := range r.infos {
		names = append(names, i.Name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Lookup(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := slices.IndexFunc(r.infos, func(i Info) bool { return i.Name == name })
	if idx < 0 {
		return Info{}, false
	}
	return r.infos[idx], true
}

// splitPrefix separates "Name:rest" when Name is a registered kind.
func (r *Registry) splitPrefix(path string) (string, string, bool) {
	name, rest, ok := strings.Cut(path, ":")
	if !ok {
		return "", path, false
	}
	if _, found := r.Lookup(name); !found {
		return "", path, false
	}
	return name, rest, true
}

func (r *Registry) possible(path string, firstBytes []byte, mode OpenMode) []Info {
	if name, _, ok := r.splitPrefix(path); ok {
		info, _ := r.Lookup(name)
		if info.Modes&mode != 0 {
			return []Info{info}
		}
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []Info
	for _, info := range r.infos {
		if info.Modes&mode == 0 {
			continue
		}
		if (path == "" && len(firstBytes) == 0) || info.probe(path, firstBytes) {
			res = append(res, info)
		}
	}
	return res
}

// PossibleReadDevices returns the kinds able to read path, in registration order.
func (r *Registry) PossibleReadDevices(path string, firstBytes []byte) []Info {
	return r.possible(path, firstBytes, ReadOnly)
}

// PossibleWriteDevices returns the kinds able to write path.
func (r *Registry) PossibleWriteDevices(path string) []Info {
	return r.possible(path, nil, WriteOnly)
}

// Create builds a closed device of the named kind.
func (r *Registry) Create(name, path string, opts ...Option) (*Device, error) {
	info, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, name)
	}
	if _, rest, ok := r.splitPrefix(path); ok {
		path = rest
	}
	driver, err := info.New(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	opts = append([]Option{WithPath(path), WithClassName(info.Name)}, opts...)
	return New(driver, opts...), nil
}

// Open tries every possible read kind for path and returns the first device
// that opens in ReadOnly mode.
func (r *Registry) Open(path string, firstBytes []byte, opts ...Option) (*Device, error) {
	candidates := r.PossibleReadDevices(path, firstBytes)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoFactory, path)
	}
	var lastErr error
	for _, info := range candidates {
		d, err := r.Create(info.Name, path, opts...)
		if err != nil {
			lastErr = err
			continue
		}
		if err := d.Open(ReadOnly); err != nil {
			slog.Debug("Device kind rejected path", "kind", info.Name, "path", path, "err", err)
			lastErr = err
			continue
		}
		return d, nil
	}
	return nil, lastErr
}
