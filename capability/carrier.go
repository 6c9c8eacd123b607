package capability

// Carrier is a shared view of one object through one capability whose static
// type has been erased. Only the query operators can restore it.
type Carrier struct {
	token Token
	view  any
}

// MutCarrier is the exclusive counterpart of Carrier.
type MutCarrier struct {
	token Token
	view  any
}

// Conceal wraps view, seen through capability C, for return from Lookup.
//
// It is meant for registries (generated or emitted) only.
func Conceal[C any](view C) Carrier {
	return Carrier{token: TokenOf[C](), view: view}
}

// ConcealMut wraps view, seen through capability C, for return from LookupMut.
//
// It is meant for registries (generated or emitted) only.
func ConcealMut[C any](view C) MutCarrier {
	return MutCarrier{token: TokenOf[C](), view: view}
}

// Token returns the capability the carrier conceals.
func (c Carrier) Token() Token { return c.token }

// Token returns the capability the carrier conceals.
func (c MutCarrier) Token() Token { return c.token }
