// Package memory is an in-process CAS, mainly for tests and short-lived tools.
package memory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

//go:generate go run xdao.co/sidecast/cmd/capgen -type CAS -caps storage.CAS,storage.Lister,storage.Sizer,storage.Pinner

// CAS keeps blocks in a map. It is safe for concurrent use.
type CAS struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	pins   map[string]struct{}
}

func New() *CAS {
	return &CAS{blocks: map[string][]byte{}, pins: map[string]struct{}{}}
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	key := id.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blocks == nil {
		c.blocks = map[string][]byte{}
	}
	if existing, ok := c.blocks[key]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	c.blocks[key] = bytes.Clone(data)
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.blocks[id.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return bytes.Clone(b), nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocks[id.String()]
	return ok
}

func (c *CAS) List() ([]cid.Cid, error) {
	c.mu.RLock()
	keys := make([]string, 0, len(c.blocks))
	for k := range c.blocks {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	out := make([]cid.Cid, 0, len(keys))
	for _, k := range keys {
		id, err := cid.Decode(k)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *CAS) Size(id cid.Cid) (int64, error) {
	if !id.Defined() {
		return 0, storage.ErrInvalidCID
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[id.String()]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(b)), nil
}

func (c *CAS) Pin(id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.blocks[id.String()]; !ok {
		return storage.ErrNotFound
	}
	if c.pins == nil {
		c.pins = map[string]struct{}{}
	}
	c.pins[id.String()] = struct{}{}
	return nil
}

func (c *CAS) Unpin(id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pins, id.String())
	return nil
}

func (c *CAS) Pinned(id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, storage.ErrInvalidCID
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pins[id.String()]
	return ok, nil
}
