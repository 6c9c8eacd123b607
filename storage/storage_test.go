package storage_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/localfs"
	"xdao.co/sidecast/storage/memory"
	"xdao.co/sidecast/storage/testkit"
)

func newLocal(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return cas
}

func sum(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.Sum([]byte(s))
	if err != nil {
		t.Fatalf("cidutil.Sum: %v", err)
	}
	return id
}

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return &storage.MultiCAS{Adapters: []storage.CAS{memory.New(), newLocal(t)}}
	})
	testkit.RunCapabilityConformance(t, func(t *testing.T) storage.CAS {
		return &storage.MultiCAS{Adapters: []storage.CAS{memory.New(), newLocal(t)}}
	}, []string{"storage.CAS", "storage.Lister", "storage.Sizer", "storage.Closer", "storage.Composite"})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	newRep := func(t *testing.T) storage.CAS {
		return &storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "mem", CAS: memory.New()},
			{Name: "fs", CAS: newLocal(t)},
		}}
	}
	testkit.RunCASConformance(t, newRep)
	testkit.RunCapabilityConformance(t, newRep, []string{
		"storage.CAS", "storage.Lister", "storage.Sizer", "storage.Pinner",
		"storage.Closer", "storage.Replicator", "storage.Composite",
	})
}

func TestMultiCAS_FallbackAndUnion(t *testing.T) {
	first, second := memory.New(), memory.New()
	a, err := first.Put([]byte("a"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := second.Put([]byte("b"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	m := &storage.MultiCAS{Adapters: []storage.CAS{first, second}}

	if got, err := m.Get(b); err != nil || string(got) != "b" {
		t.Fatalf("Get fallback: %q %v", got, err)
	}
	ids, err := storage.List(m)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || !slices.ContainsFunc(ids, a.Equals) || !slices.ContainsFunc(ids, b.Equals) {
		t.Fatalf("List union: got %v", ids)
	}
	if n, err := storage.Size(m, b); err != nil || n != 1 {
		t.Fatalf("Size: %d %v", n, err)
	}
	if _, err := storage.Size(m, sum(t, "absent")); !storage.IsNotFound(err) {
		t.Fatalf("Size absent: got %v want ErrNotFound", err)
	}
}

// onlyCAS advertises nothing beyond storage.CAS.
type onlyCAS struct{ inner *memory.CAS }

func (o *onlyCAS) Put(b []byte) (cid.Cid, error)  { return o.inner.Put(b) }
func (o *onlyCAS) Get(id cid.Cid) ([]byte, error) { return o.inner.Get(id) }
func (o *onlyCAS) Has(id cid.Cid) bool            { return o.inner.Has(id) }

func (o *onlyCAS) Lookup(t capability.Token) (capability.Carrier, bool) {
	if t == capability.TokenOf[storage.CAS]() {
		return capability.Conceal[storage.CAS](o), true
	}
	return capability.Carrier{}, false
}

func (o *onlyCAS) LookupMut(t capability.Token) (capability.MutCarrier, bool) {
	if t == capability.TokenOf[storage.CAS]() {
		return capability.ConcealMut[storage.CAS](o), true
	}
	return capability.MutCarrier{}, false
}

func (o *onlyCAS) AsBase() capability.Ref       { return capability.Shared(o) }
func (o *onlyCAS) AsBaseMut() capability.MutRef { return capability.Exclusive(o) }

func TestHelpers_Unsupported(t *testing.T) {
	cas := &onlyCAS{inner: memory.New()}
	id, err := cas.Put([]byte("plain"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if got := storage.Capabilities(cas); !slices.Equal(got, []string{"storage.CAS"}) {
		t.Fatalf("Capabilities: %v", got)
	}
	if _, err := storage.List(cas); !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("List: got %v want ErrUnsupported", err)
	}
	if err := storage.Pin(cas, id); !storage.IsUnsupported(err) {
		t.Fatalf("Pin: got %v want ErrUnsupported", err)
	}
	if err := storage.Unpin(cas, id); !storage.IsUnsupported(err) {
		t.Fatalf("Unpin: got %v want ErrUnsupported", err)
	}
	if _, err := storage.Pinned(cas, id); !storage.IsUnsupported(err) {
		t.Fatalf("Pinned: got %v want ErrUnsupported", err)
	}
	if err := storage.Close(cas); err != nil {
		t.Fatalf("Close without Closer should be a no-op, got %v", err)
	}

	// Size falls back to Get when the backend cannot size.
	if n, err := storage.Size(cas, id); err != nil || n != int64(len("plain")) {
		t.Fatalf("Size fallback: %d %v", n, err)
	}
	if _, err := storage.Size(cas, cid.Undef); !errors.Is(err, storage.ErrInvalidCID) {
		t.Fatalf("Size undef: got %v", err)
	}
}

func TestHelpers_NilCAS(t *testing.T) {
	if got := storage.Capabilities(nil); got != nil {
		t.Fatalf("Capabilities(nil) = %v", got)
	}
	if _, err := storage.List(nil); !storage.IsUnsupported(err) {
		t.Fatalf("List(nil): %v", err)
	}
	if err := storage.Walk(nil, func(string, storage.CAS) error { t.Fatalf("visited nil"); return nil }); err != nil {
		t.Fatalf("Walk(nil): %v", err)
	}
}

func TestMultiCAS_ListUnsupportedWhenNoMemberLists(t *testing.T) {
	m := &storage.MultiCAS{Adapters: []storage.CAS{&onlyCAS{inner: memory.New()}}}
	if _, err := storage.List(m); !storage.IsUnsupported(err) {
		t.Fatalf("List: got %v want ErrUnsupported", err)
	}
}

func TestReplicatingCAS_PutAllAndPins(t *testing.T) {
	mem, fs := memory.New(), newLocal(t)
	r := &storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "mem", CAS: mem}, {Name: "fs", CAS: fs}}}

	rep, ok := capability.Sidecast[storage.Replicator](r)
	if !ok {
		t.Fatalf("ReplicatingCAS must advertise Replicator")
	}
	id, per, err := rep.PutAll([]byte("everywhere"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(per) != 2 || !per["mem"].Equals(id) || !per["fs"].Equals(id) {
		t.Fatalf("PutAll per-backend: %v", per)
	}
	if !mem.Has(id) || !fs.Has(id) {
		t.Fatalf("block not replicated")
	}

	// Only the memory backend can pin; ReplicatingCAS pins where it can.
	if err := storage.Pin(r, id); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if pinned, _ := mem.Pinned(id); !pinned {
		t.Fatalf("memory member not pinned")
	}
	if pinned, err := storage.Pinned(r, id); err != nil || !pinned {
		t.Fatalf("Pinned: %v %v", pinned, err)
	}
}

func TestReplicatingCAS_PinUnsupportedWithoutPinners(t *testing.T) {
	r := &storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "fs", CAS: newLocal(t)}}}
	id, err := r.Put([]byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := storage.Pin(r, id); !storage.IsUnsupported(err) {
		t.Fatalf("Pin: got %v want ErrUnsupported", err)
	}
}

func TestWalk_DepthFirst(t *testing.T) {
	inner := &storage.MultiCAS{Adapters: []storage.CAS{memory.New(), memory.New()}}
	outer := &storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "nested", CAS: inner},
		{Name: "flat", CAS: memory.New()},
	}}

	var visited []string
	err := storage.Walk(outer, func(name string, cas storage.CAS) error {
		visited = append(visited, name)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"", "nested", "0", "1", "flat"}
	if !slices.Equal(visited, want) {
		t.Fatalf("Walk order: got %v want %v", visited, want)
	}
}

func TestWalk_StopsOnError(t *testing.T) {
	stop := errors.New("stop")
	m := &storage.MultiCAS{Adapters: []storage.CAS{memory.New(), memory.New()}}
	var n int
	err := storage.Walk(m, func(name string, cas storage.CAS) error {
		n++
		if name == "0" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 2 {
		t.Fatalf("Walk: err=%v visits=%d", err, n)
	}
}

func TestCapabilities_ViewSidecastsAgain(t *testing.T) {
	m := &storage.MultiCAS{Adapters: []storage.CAS{memory.New()}}
	l, ok := capability.Sidecast[storage.Lister](m)
	if !ok {
		t.Fatalf("expected Lister")
	}
	// A capability view is itself a base and can reach its siblings.
	c, ok := capability.Sidecast[storage.Composite](l)
	if !ok || len(c.Members()) != 1 {
		t.Fatalf("Lister view could not reach Composite")
	}
}
