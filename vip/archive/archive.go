// Package archive persists the configuration of the pools of a session.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thermavip/vip/device"
	"thermavip/vip/pool"
)

// CurrentVersion is the version written by SaveToFile
const CurrentVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported archive version")

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// ParseFormat parses "json" or "yaml". An empty string is JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatJSON, fmt.Errorf("unknown archive format %q", s)
}

// FormatFor picks the format from the file extension.
func FormatFor(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// PoolState is the archived configuration of one pool
type PoolState struct {
	pool.State `yaml:",inline"`
}

// File is the content of an archive
type File struct {
	Version int         `json:"version" yaml:"version"`
	SavedAt time.Time   `json:"saved_at" yaml:"saved_at"`
	Pools   []PoolState `json:"pools" yaml:"pools"`
}

// Capture snapshots every pool of r.
func Capture(r *pool.Registry) File {
	f := File{Version: CurrentVersion, SavedAt: time.Now().UTC().Truncate(time.Second)}
	for _, p := range r.Pools() {
		f.Pools = append(f.Pools, PoolState{State: p.State()})
	}
	return f
}

// Apply restores the pools of f into r. Pools are matched by name and
// created when missing; devices are created from devices.
func Apply(f File, r *pool.Registry, devices *device.Registry) error {
	var errs []error
	for _, ps := range f.Pools {
		p, ok := r.Find(ps.Name)
		if !ok {
			p = r.New()
			r.Rename(p, ps.Name)
		}
		if err := p.ApplyState(ps.State, devices); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", ps.Name, err))
		}
	}
	return errors.Join(errs...)
}

func marshal(f File, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(f)
	}
	return json.MarshalIndent(f, "", "  ")
}

func unmarshal(data []byte, format Format, f *File) error {
	if format == FormatYAML {
		return yaml.Unmarshal(data, f)
	}
	return json.Unmarshal(data, f)
}

// SaveToFile writes f through a temporary file renamed over filename.
func SaveToFile(filename string, f File, format Format) error {
	if f.Version == 0 {
		f.Version = CurrentVersion
	}
	data, err := marshal(f, format)
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	tempFilename := filename + ".tmp"
	if err := os.WriteFile(tempFilename, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temporary file %s: %w", tempFilename, err)
	}
	if err := os.Rename(tempFilename, filename); err != nil {
		_ = os.Remove(tempFilename)
		return fmt.Errorf("failed to rename temporary file %s to %s: %w", tempFilename, filename, err)
	}

	slog.Info("Archive saved", "filename", filename, "format", format, "pools", len(f.Pools))
	return nil
}

// LoadFromFile reads an archive written by SaveToFile. The format follows
// the file extension.
func LoadFromFile(filename string) (File, error) {
	var f File
	data, err := os.ReadFile(filename)
	if err != nil {
		return f, fmt.Errorf("failed to read archive %s: %w", filename, err)
	}
	if err := unmarshal(data, FormatFor(filename), &f); err != nil {
		return f, fmt.Errorf("failed to unmarshal archive %s: %w", filename, err)
	}

	switch {
	case f.Version > CurrentVersion:
		return f, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, f.Version, CurrentVersion)
	case f.Version < CurrentVersion:
		slog.Warn("Archive version mismatch, attempting to load anyway",
			"filename", filename,
			"fileVersion", f.Version,
			"expectedVersion", CurrentVersion)
	}
	return f, nil
}
