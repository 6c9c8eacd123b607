package storage

import (
	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
)

// CAS is a minimal content-addressable storage interface and the base
// capability of every adapter.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (callers are responsible for supplying canonical bytes).
// - Get MUST return ErrNotFound when the CID is absent.
//
// Everything beyond Put/Get/Has is an optional capability that an adapter
// advertises explicitly and callers reach with capability.Query.
type CAS interface {
	capability.Base
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
