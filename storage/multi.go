package storage

import (
	"errors"
	"sort"
	"strconv"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Hydration order is the slice order in Adapters; callers MUST supply a fixed order.
// This avoids map-iteration nondeterminism and makes the retrieval strategy explicit.
//
// Put is defined to write only to the first adapter.
//
// MultiCAS advertises Lister, Sizer, Closer and Composite. Lister and Sizer
// consult every adapter that itself advertises the capability.
type MultiCAS struct {
	Adapters []CAS
}

var multiCaps = capability.MustEmit(
	capability.Provide[CAS, *MultiCAS](),
	capability.Provide[Lister, *MultiCAS](),
	capability.Provide[Sizer, *MultiCAS](),
	capability.Provide[Closer, *MultiCAS](),
	capability.Provide[Composite, *MultiCAS](),
)

var (
	_ Lister    = (*MultiCAS)(nil)
	_ Sizer     = (*MultiCAS)(nil)
	_ Closer    = (*MultiCAS)(nil)
	_ Composite = (*MultiCAS)(nil)
)

func (m *MultiCAS) Lookup(t capability.Token) (capability.Carrier, bool) {
	return multiCaps.Lookup(m, t)
}

func (m *MultiCAS) LookupMut(t capability.Token) (capability.MutCarrier, bool) {
	return multiCaps.LookupMut(m, t)
}

func (m *MultiCAS) AsBase() capability.Ref       { return capability.Shared(m) }
func (m *MultiCAS) AsBaseMut() capability.MutRef { return capability.Exclusive(m) }

func (m *MultiCAS) Put(bytes []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(bytes)
}

func (m *MultiCAS) Get(id cid.Cid) ([]byte, error) {
	for _, cas := range m.Adapters {
		b, err := cas.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m *MultiCAS) Has(id cid.Cid) bool {
	for _, cas := range m.Adapters {
		if cas.Has(id) {
			return true
		}
	}
	return false
}

// List returns the union of every listable adapter. Adapters that cannot list
// are skipped; if none can, List returns ErrUnsupported.
func (m *MultiCAS) List() ([]cid.Cid, error) {
	return listUnion(m.Adapters)
}

// Size asks the first adapter holding id.
func (m *MultiCAS) Size(id cid.Cid) (int64, error) {
	return sizeFirst(m.Adapters, id)
}

// Close closes every adapter that advertises Closer, in reverse order, and
// returns the first error.
func (m *MultiCAS) Close() error {
	return closeAll(m.Adapters)
}

// Members returns the adapters named by their position ("0", "1", ...).
func (m *MultiCAS) Members() []NamedCAS {
	out := make([]NamedCAS, len(m.Adapters))
	for i, cas := range m.Adapters {
		out[i] = NamedCAS{Name: strconv.Itoa(i), CAS: cas}
	}
	return out
}

func listUnion(members []CAS) ([]cid.Cid, error) {
	seen := map[string]cid.Cid{}
	var listed bool
	for _, cas := range members {
		l, ok := capability.Sidecast[Lister](cas)
		if !ok {
			continue
		}
		listed = true
		ids, err := l.List()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id.String()] = id
		}
	}
	if !listed {
		return nil, ErrUnsupported
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]cid.Cid, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out, nil
}

func sizeFirst(members []CAS, id cid.Cid) (int64, error) {
	if !id.Defined() {
		return 0, ErrInvalidCID
	}
	for _, cas := range members {
		if cas == nil || !cas.Has(id) {
			continue
		}
		return Size(cas, id)
	}
	return 0, ErrNotFound
}

func closeAll(members []CAS) error {
	var firstErr error
	for i := len(members) - 1; i >= 0; i-- {
		if err := Close(members[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
