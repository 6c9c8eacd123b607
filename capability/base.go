package capability

// Base is the capability every participating object satisfies.
//
// Lookup and LookupMut are consulted by Query and QueryMut. They are not for
// direct use: a carrier is meaningless outside the query operators.
// AsBase and AsBaseMut promote a concrete value to a base handle so that
// generic code can query it without widening it by hand.
//
// Implementations are normally emitted by capgen or delegate to a Registry.
type Base interface {
	Lookup(t Token) (Carrier, bool)
	LookupMut(t Token) (MutCarrier, bool)
	AsBase() Ref
	AsBaseMut() MutRef
}

// Ref is a shared handle to an object viewed through its base capability.
type Ref struct {
	b Base
}

// MutRef is an exclusive handle to an object viewed through its base
// capability. See the package documentation for the aliasing contract.
type MutRef struct {
	b Base
}

// Shared returns a shared handle to b.
func Shared(b Base) Ref { return Ref{b: b} }

// Exclusive returns an exclusive handle to b.
func Exclusive(b Base) MutRef { return MutRef{b: b} }

// IsZero reports whether r refers to no object.
func (r Ref) IsZero() bool { return r.b == nil }

// IsZero reports whether r refers to no object.
func (r MutRef) IsZero() bool { return r.b == nil }

// Shared reborrows r as a shared handle. While the returned Ref is in use,
// r must not be used for mutation.
func (r MutRef) Shared() Ref { return Ref{b: r.b} }
