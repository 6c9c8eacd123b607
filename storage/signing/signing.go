// Package signing wraps a CAS so it can issue signed receipts for the blocks
// it holds.
//
// The wrapper advertises storage.CAS, storage.Receipter and storage.Unwrapper
// only. Capabilities of the inner store are reached through Unwrap (or
// storage.Walk); they are not forwarded implicitly.
package signing

import (
	"fmt"
	"strconv"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/storage"
)

// ReceiptDomain prefixes every signed receipt message.
const ReceiptDomain = "xdao-sidecast-receipt-v1"

type CAS struct {
	inner  storage.CAS
	signer *Signer
}

var signingCaps = capability.MustEmit(
	capability.Provide[storage.CAS, *CAS](),
	capability.Provide[storage.Receipter, *CAS](),
	capability.Provide[storage.Unwrapper, *CAS](),
)

// Wrap returns a receipt-issuing view of inner.
func Wrap(inner storage.CAS, signer *Signer) (*CAS, error) {
	if inner == nil {
		return nil, fmt.Errorf("signing: nil CAS")
	}
	if signer == nil {
		return nil, fmt.Errorf("signing: nil signer")
	}
	return &CAS{inner: inner, signer: signer}, nil
}

func (c *CAS) Lookup(t capability.Token) (capability.Carrier, bool) {
	return signingCaps.Lookup(c, t)
}

func (c *CAS) LookupMut(t capability.Token) (capability.MutCarrier, bool) {
	return signingCaps.LookupMut(c, t)
}

func (c *CAS) AsBase() capability.Ref       { return capability.Shared(c) }
func (c *CAS) AsBaseMut() capability.MutRef { return capability.Exclusive(c) }

func (c *CAS) Put(data []byte) (cid.Cid, error) { return c.inner.Put(data) }
func (c *CAS) Get(id cid.Cid) ([]byte, error)   { return c.inner.Get(id) }
func (c *CAS) Has(id cid.Cid) bool              { return c.inner.Has(id) }

func (c *CAS) Unwrap() storage.CAS { return c.inner }

// Receipt signs a statement that id, of the reported size, is held by the
// inner CAS. Absent blocks yield storage.ErrNotFound.
func (c *CAS) Receipt(id cid.Cid) (storage.Receipt, error) {
	if !id.Defined() {
		return storage.Receipt{}, storage.ErrInvalidCID
	}
	if !c.inner.Has(id) {
		return storage.Receipt{}, storage.ErrNotFound
	}
	size, err := storage.Size(c.inner, id)
	if err != nil {
		return storage.Receipt{}, err
	}
	sig, err := c.signer.Sign(receiptMessage(id.String(), size))
	if err != nil {
		return storage.Receipt{}, err
	}
	return storage.Receipt{
		CID:       id.String(),
		Size:      size,
		Algorithm: c.signer.Algorithm(),
		HashAlg:   c.signer.HashAlg(),
		Signer:    c.signer.PublicKey(),
		Signature: sig,
	}, nil
}

func receiptMessage(id string, size int64) []byte {
	msg := make([]byte, 0, len(ReceiptDomain)+len(id)+24)
	msg = append(msg, ReceiptDomain...)
	msg = append(msg, 0)
	msg = append(msg, id...)
	msg = append(msg, 0)
	msg = strconv.AppendInt(msg, size, 10)
	return msg
}
