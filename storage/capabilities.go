package storage

import (
	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
)

// Lister enumerates stored CIDs, sorted by their string form.
type Lister interface {
	capability.Base
	List() ([]cid.Cid, error)
}

// Sizer reports the stored size of an object without fetching it.
type Sizer interface {
	capability.Base
	Size(id cid.Cid) (int64, error)
}

// Pinner protects objects from backend garbage collection.
// Pin and Unpin mutate the backend; query it with capability.QueryMut.
//
// Pinning an absent block fails with ErrNotFound. Unpinning a block that is
// absent or not pinned is a no-op, and Pinned reports false for it.
type Pinner interface {
	capability.Base
	Pin(id cid.Cid) error
	Unpin(id cid.Cid) error
	Pinned(id cid.Cid) (bool, error)
}

// Closer releases backend resources. Query it with capability.QueryMut.
type Closer interface {
	capability.Base
	Close() error
}

// Replicator writes to several backends at once and reports every
// backend's CID.
type Replicator interface {
	capability.Base
	PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error)
}

// Composite is a CAS assembled from other CAS values.
type Composite interface {
	capability.Base
	Members() []NamedCAS
}

// Unwrapper is a CAS decorating another CAS.
type Unwrapper interface {
	capability.Base
	Unwrap() CAS
}

// Receipter issues signed statements that a CID is held by the backend.
type Receipter interface {
	capability.Base
	Receipt(id cid.Cid) (Receipt, error)
}

// Receipt is a detached signature over a stored CID.
type Receipt struct {
	CID       string `json:"cid"`
	Size      int64  `json:"size"`
	Algorithm string `json:"algorithm"`
	HashAlg   string `json:"hashAlg"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

type knownCap struct {
	token capability.Token
	has   func(capability.Base) bool
}

// known lists the storage capabilities Capabilities reports, in a fixed order.
var known = []knownCap{
	{capability.TokenOf[CAS](), capability.Advertises[CAS]},
	{capability.TokenOf[Lister](), capability.Advertises[Lister]},
	{capability.TokenOf[Sizer](), capability.Advertises[Sizer]},
	{capability.TokenOf[Pinner](), capability.Advertises[Pinner]},
	{capability.TokenOf[Closer](), capability.Advertises[Closer]},
	{capability.TokenOf[Replicator](), capability.Advertises[Replicator]},
	{capability.TokenOf[Composite](), capability.Advertises[Composite]},
	{capability.TokenOf[Unwrapper](), capability.Advertises[Unwrapper]},
	{capability.TokenOf[Receipter](), capability.Advertises[Receipter]},
}

// Capabilities returns the names of the storage capabilities cas advertises,
// e.g. "storage.Lister".
func Capabilities(cas CAS) []string {
	if cas == nil {
		return nil
	}
	var out []string
	for _, p := range known {
		if p.has(cas) {
			out = append(out, p.token.String())
		}
	}
	return out
}

// List returns every CID in cas, or ErrUnsupported if cas cannot enumerate.
func List(cas CAS) ([]cid.Cid, error) {
	l, ok := capability.Sidecast[Lister](cas)
	if !ok {
		return nil, ErrUnsupported
	}
	return l.List()
}

// Size returns the size of id. Backends without Sizer are asked for the bytes.
func Size(cas CAS, id cid.Cid) (int64, error) {
	if !id.Defined() {
		return 0, ErrInvalidCID
	}
	if s, ok := capability.Sidecast[Sizer](cas); ok {
		return s.Size(id)
	}
	if cas == nil {
		return 0, ErrUnsupported
	}
	b, err := cas.Get(id)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// Pin pins id, or returns ErrUnsupported.
func Pin(cas CAS, id cid.Cid) error {
	p, ok := capability.SidecastMut[Pinner](cas)
	if !ok {
		return ErrUnsupported
	}
	return p.Pin(id)
}

// Unpin unpins id, or returns ErrUnsupported.
func Unpin(cas CAS, id cid.Cid) error {
	p, ok := capability.SidecastMut[Pinner](cas)
	if !ok {
		return ErrUnsupported
	}
	return p.Unpin(id)
}

// Pinned reports whether id is pinned, or returns ErrUnsupported.
func Pinned(cas CAS, id cid.Cid) (bool, error) {
	p, ok := capability.Sidecast[Pinner](cas)
	if !ok {
		return false, ErrUnsupported
	}
	return p.Pinned(id)
}

// Close closes cas if it advertises Closer. Other backends hold nothing to
// release and Close returns nil.
func Close(cas CAS) error {
	c, ok := capability.SidecastMut[Closer](cas)
	if !ok {
		return nil
	}
	return c.Close()
}

// Walk visits cas and, depth-first, every member of a Composite and the
// inner CAS of an Unwrapper. Walk stops at the first error returned by fn.
func Walk(cas CAS, fn func(name string, cas CAS) error) error {
	return walk("", cas, fn)
}

func walk(name string, cas CAS, fn func(string, CAS) error) error {
	if cas == nil {
		return nil
	}
	if err := fn(name, cas); err != nil {
		return err
	}
	if c, ok := capability.Sidecast[Composite](cas); ok {
		for _, m := range c.Members() {
			if err := walk(m.Name, m.CAS, fn); err != nil {
				return err
			}
		}
	}
	if u, ok := capability.Sidecast[Unwrapper](cas); ok {
		if err := walk(name, u.Unwrap(), fn); err != nil {
			return err
		}
	}
	return nil
}
