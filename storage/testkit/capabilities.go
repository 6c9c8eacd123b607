package testkit

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

type parityCheck struct {
	name string
	read func(capability.Ref) bool
	mut  func(capability.MutRef) bool
}

func checkFor[C any]() parityCheck {
	return parityCheck{
		name: capability.TokenOf[C]().String(),
		read: func(r capability.Ref) bool { _, ok := capability.Query[C](r); return ok },
		mut:  func(r capability.MutRef) bool { _, ok := capability.QueryMut[C](r); return ok },
	}
}

var parityChecks = []parityCheck{
	checkFor[storage.CAS](),
	checkFor[storage.Lister](),
	checkFor[storage.Sizer](),
	checkFor[storage.Pinner](),
	checkFor[storage.Closer](),
	checkFor[storage.Replicator](),
	checkFor[storage.Composite](),
	checkFor[storage.Unwrapper](),
	checkFor[storage.Receipter](),
}

// RunCapabilityConformance checks that a CAS advertises exactly want
// (storage.Capabilities names, in storage.Capabilities order) and that every
// advertised capability behaves as a view of the same object.
func RunCapabilityConformance(t *testing.T, newCAS NewCAS, want []string) {
	t.Helper()

	t.Run("AdvertisedSet", func(t *testing.T) {
		cas := newCAS(t)
		got := storage.Capabilities(cas)
		if !slices.Equal(got, want) {
			t.Fatalf("capabilities: got %v want %v", got, want)
		}
	})

	t.Run("MutabilityParity", func(t *testing.T) {
		cas := newCAS(t)
		for _, p := range parityChecks {
			read := p.read(cas.AsBase())
			mut := p.mut(cas.AsBaseMut())
			if read != mut {
				t.Fatalf("%s: Query=%v QueryMut=%v", p.name, read, mut)
			}
			if again := p.read(cas.AsBase()); again != read {
				t.Fatalf("%s: repeated query changed result", p.name)
			}
		}
	})

	t.Run("SoundHit", func(t *testing.T) {
		cas := newCAS(t)
		payload := []byte("capability view payload")
		id, err := cas.Put(payload)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}

		if v, ok := capability.Sidecast[storage.CAS](cas); ok {
			got, err := v.Get(id)
			if err != nil || !bytes.Equal(got, payload) {
				t.Fatalf("CAS view Get: %v", err)
			}
		}
		if l, ok := capability.Sidecast[storage.Lister](cas); ok {
			ids, err := l.List()
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if !slices.ContainsFunc(ids, id.Equals) {
				t.Fatalf("List does not include stored CID %s", id)
			}
			if !slices.IsSortedFunc(ids, func(a, b cid.Cid) int { return strings.Compare(a.String(), b.String()) }) {
				t.Fatalf("List is not sorted")
			}
		}
		if s, ok := capability.Sidecast[storage.Sizer](cas); ok {
			n, err := s.Size(id)
			if err != nil {
				t.Fatalf("Size: %v", err)
			}
			if n != int64(len(payload)) {
				t.Fatalf("Size: got %d want %d", n, len(payload))
			}
			missing, _ := cidutil.Sum([]byte("never stored"))
			if _, err := s.Size(missing); !storage.IsNotFound(err) {
				t.Fatalf("Size missing: got %v want ErrNotFound", err)
			}
		}
		if p, ok := capability.SidecastMut[storage.Pinner](cas); ok {
			if err := p.Pin(id); err != nil {
				t.Fatalf("Pin: %v", err)
			}
			pinned, err := p.Pinned(id)
			if err != nil || !pinned {
				t.Fatalf("Pinned after Pin: %v %v", pinned, err)
			}
			if err := p.Unpin(id); err != nil {
				t.Fatalf("Unpin: %v", err)
			}
			pinned, err = p.Pinned(id)
			if err != nil || pinned {
				t.Fatalf("Pinned after Unpin: %v %v", pinned, err)
			}
		}
	})

	t.Run("PinnerAbsentBlock", func(t *testing.T) {
		cas := newCAS(t)
		p, ok := capability.SidecastMut[storage.Pinner](cas)
		if !ok {
			return
		}
		absent, err := cidutil.Sum([]byte("never stored"))
		if err != nil {
			t.Fatalf("cidutil.Sum: %v", err)
		}
		if err := p.Pin(absent); !storage.IsNotFound(err) {
			t.Fatalf("Pin absent: got %v want ErrNotFound", err)
		}
		if err := p.Unpin(absent); err != nil {
			t.Fatalf("Unpin absent: got %v want nil", err)
		}
		pinned, err := p.Pinned(absent)
		if err != nil || pinned {
			t.Fatalf("Pinned absent: %v %v", pinned, err)
		}
	})

	t.Run("ViewsStayIndependent", func(t *testing.T) {
		cas := newCAS(t)
		before := storage.Capabilities(cas)
		for _, p := range parityChecks {
			_ = p.read(cas.AsBase())
		}
		if after := storage.Capabilities(cas); !slices.Equal(before, after) {
			t.Fatalf("queries changed the advertised set: %v -> %v", before, after)
		}
	})
}
