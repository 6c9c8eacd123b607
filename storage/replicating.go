package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
)

// NamedCAS associates a CAS with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// CIDs to match (otherwise ErrCIDMismatch is returned).
//
// Besides the CAS contract it advertises Replicator (per-backend CID
// mapping), Pinner (pins on every backend that can pin), Lister, Sizer,
// Closer and Composite.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var replicatingCaps = capability.MustEmit(
	capability.Provide[CAS, *ReplicatingCAS](),
	capability.Provide[Replicator, *ReplicatingCAS](),
	capability.Provide[Pinner, *ReplicatingCAS](),
	capability.Provide[Lister, *ReplicatingCAS](),
	capability.Provide[Sizer, *ReplicatingCAS](),
	capability.Provide[Closer, *ReplicatingCAS](),
	capability.Provide[Composite, *ReplicatingCAS](),
)

var (
	_ Replicator = (*ReplicatingCAS)(nil)
	_ Pinner     = (*ReplicatingCAS)(nil)
	_ Composite  = (*ReplicatingCAS)(nil)
)

func (r *ReplicatingCAS) Lookup(t capability.Token) (capability.Carrier, bool) {
	return replicatingCaps.Lookup(r, t)
}

func (r *ReplicatingCAS) LookupMut(t capability.Token) (capability.MutCarrier, bool) {
	return replicatingCaps.LookupMut(r, t)
}

func (r *ReplicatingCAS) AsBase() capability.Ref       { return capability.Shared(r) }
func (r *ReplicatingCAS) AsBaseMut() capability.MutRef { return capability.Exclusive(r) }

// PutAll writes the same bytes to all backends.
//
// It returns:
// - the canonical CID (computed from bytes)
// - a map of backend name -> returned CID
//
// If any backend returns a different CID, ErrCIDMismatch is returned.
func (r *ReplicatingCAS) PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.Sum(bytes)
	if err != nil {
		return cid.Undef, nil, err
	}
	if !want.Defined() {
		return cid.Undef, nil, ErrInvalidCID
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		got, err := b.CAS.Put(bytes)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if got != want {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r *ReplicatingCAS) Put(bytes []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

func (r *ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r *ReplicatingCAS) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}

// Pin pins id on every backend that advertises Pinner. At least one backend
// must be able to pin.
func (r *ReplicatingCAS) Pin(id cid.Cid) error {
	return r.eachPinner(func(name string, p Pinner) error {
		if err := p.Pin(id); err != nil {
			return fmt.Errorf("storage: pin on %q: %w", name, err)
		}
		return nil
	})
}

// Unpin unpins id on every backend that advertises Pinner.
func (r *ReplicatingCAS) Unpin(id cid.Cid) error {
	return r.eachPinner(func(name string, p Pinner) error {
		if err := p.Unpin(id); err != nil {
			return fmt.Errorf("storage: unpin on %q: %w", name, err)
		}
		return nil
	})
}

// Pinned reports whether every pinning backend has id pinned.
func (r *ReplicatingCAS) Pinned(id cid.Cid) (bool, error) {
	all := true
	err := r.eachPinner(func(name string, p Pinner) error {
		ok, err := p.Pinned(id)
		if err != nil {
			return fmt.Errorf("storage: pinned on %q: %w", name, err)
		}
		all = all && ok
		return nil
	})
	if err != nil {
		return false, err
	}
	return all, nil
}

func (r *ReplicatingCAS) eachPinner(fn func(name string, p Pinner) error) error {
	var found bool
	for _, b := range r.Backends {
		p, ok := capability.SidecastMut[Pinner](b.CAS)
		if !ok {
			continue
		}
		found = true
		if err := fn(b.Name, p); err != nil {
			return err
		}
	}
	if !found {
		return ErrUnsupported
	}
	return nil
}

func (r *ReplicatingCAS) List() ([]cid.Cid, error) {
	return listUnion(r.members())
}

func (r *ReplicatingCAS) Size(id cid.Cid) (int64, error) {
	return sizeFirst(r.members(), id)
}

// Close closes every backend that advertises Closer, in reverse order.
func (r *ReplicatingCAS) Close() error {
	if err := closeAll(r.members()); err != nil {
		return fmt.Errorf("storage: ReplicatingCAS close: %w", err)
	}
	return nil
}

func (r *ReplicatingCAS) Members() []NamedCAS {
	return append([]NamedCAS(nil), r.Backends...)
}

func (r *ReplicatingCAS) members() []CAS {
	out := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS != nil {
			out = append(out, b.CAS)
		}
	}
	return out
}
