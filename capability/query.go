package capability

// Query asks the object behind r for capability C.
//
// It returns the object viewed as C and true when the object advertises C,
// or the zero value and false otherwise. The view borrows from r.
func Query[C any](r Ref) (C, bool) {
	var zero C
	if r.b == nil {
		return zero, false
	}
	want := TokenOf[C]()
	c, ok := r.b.Lookup(want)
	if !ok {
		return zero, false
	}
	return restore[C](want, c.token, c.view)
}

// QueryMut is Query for exclusive handles. The returned view is exclusive
// for as long as it is used.
func QueryMut[C any](r MutRef) (C, bool) {
	var zero C
	if r.b == nil {
		return zero, false
	}
	want := TokenOf[C]()
	c, ok := r.b.LookupMut(want)
	if !ok {
		return zero, false
	}
	return restore[C](want, c.token, c.view)
}

// Sidecast promotes b with AsBase and queries it for C.
func Sidecast[C any](b Base) (C, bool) {
	if b == nil {
		var zero C
		return zero, false
	}
	return Query[C](b.AsBase())
}

// SidecastMut promotes b with AsBaseMut and queries it for C.
func SidecastMut[C any](b Base) (C, bool) {
	if b == nil {
		var zero C
		return zero, false
	}
	return QueryMut[C](b.AsBaseMut())
}

// Advertises reports whether b advertises capability C.
func Advertises[C any](b Base) bool {
	_, ok := Sidecast[C](b)
	return ok
}

// restore recovers the concealed view. A carrier whose token differs from the
// requested one is treated as absent.
func restore[C any](want, got Token, view any) (C, bool) {
	var zero C
	if got != want || view == nil {
		return zero, false
	}
	v, ok := view.(C)
	if !ok {
		return zero, false
	}
	return v, true
}
