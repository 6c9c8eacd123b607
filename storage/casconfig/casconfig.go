// Package casconfig opens one or more registered CAS backends from a JSON or
// YAML document.
package casconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/casregistry"
)

// Write policies.
const (
	// PolicyFirst writes to the first backend only. Reads fall back in order.
	PolicyFirst = "first"
	// PolicyAll writes to every backend and requires their CIDs to agree.
	PolicyAll = "all"
)

// Config selects backends at runtime. Backend packages still have to be
// linked into the binary, usually with blank imports.
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "backends": [
//	    {"name":"localfs", "config":{"localfs-dir":"/tmp/cas"}},
//	    {"name":"ipfs", "config":{"ipfs-path":"/tmp/ipfs", "pin":"true"}}
//	  ]
//	}
//
// The same document may be written as YAML (files ending in .yaml or .yml):
//
//	write_policy: all
//	backends:
//	  - name: localfs
//	    config: {localfs-dir: /tmp/cas}
//	  - name: sqlite
//	    config: {sqlite-path: /tmp/cas.db}
//
// Config keys are the backend's flag names.
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty" yaml:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends" yaml:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend to open, e.g. "localfs".
	Name string `json:"name" yaml:"name"`
	// ID names this member in Walk output and replication maps. Defaults to Name.
	ID     string            `json:"id,omitempty" yaml:"id,omitempty"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// Key is the member name: ID when set, otherwise Name.
func (b BackendConfig) Key() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// LoadFile reads a JSON or YAML config, chosen by file extension.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(b)
	default:
		return ParseJSON(b)
	}
}

func ParseJSON(b []byte) (Config, error) {
	return decode(json.Unmarshal, b)
}

func ParseYAML(b []byte) (Config, error) {
	return decode(yaml.Unmarshal, b)
}

func decode(unmarshal func([]byte, any) error, b []byte) (Config, error) {
	var cfg Config
	if err := unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("casconfig: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if _, dup := seen[b.Key()]; dup {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.Key())
		}
		seen[b.Key()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", PolicyFirst, PolicyAll:
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// ordered returns the backends with preferred, matched by name or ID, moved
// to the front.
func (c Config) ordered(preferred string) ([]BackendConfig, error) {
	out := slices.Clone(c.Backends)
	if preferred == "" {
		return out, nil
	}
	idx := slices.IndexFunc(out, func(b BackendConfig) bool {
		return b.Name == preferred || b.ID == preferred
	})
	if idx < 0 {
		return nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferred)
	}
	first := out[idx]
	out = slices.Delete(out, idx, idx+1)
	return slices.Insert(out, 0, first), nil
}

// Open opens every configured backend and combines them per WritePolicy. A
// single backend is returned as is. preferredBackend, if set, is moved to
// the front and so receives writes under PolicyFirst.
//
// The returned close function closes members in reverse order and reports
// the first error.
func (c Config) Open(usage casregistry.Usage, preferredBackend string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	ordered, err := c.ordered(preferredBackend)
	if err != nil {
		return nil, nil, err
	}

	var closers closeStack
	named := make([]storage.NamedCAS, 0, len(ordered))
	for _, b := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			_ = closers.Close()
			return nil, nil, fmt.Errorf("casconfig: open %q: %w", b.Key(), err)
		}
		closers.push(closeFn)
		named = append(named, storage.NamedCAS{Name: b.Key(), CAS: cas})
	}

	if len(named) == 1 {
		return named[0].CAS, closers.Close, nil
	}
	if c.WritePolicy == PolicyAll {
		return &storage.ReplicatingCAS{Backends: named}, closers.Close, nil
	}
	adapters := make([]storage.CAS, len(named))
	for i, n := range named {
		adapters[i] = n.CAS
	}
	return &storage.MultiCAS{Adapters: adapters}, closers.Close, nil
}

type closeStack []func() error

func (s *closeStack) push(fn func() error) {
	if fn != nil {
		*s = append(*s, fn)
	}
}

func (s closeStack) Close() error {
	var first error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
