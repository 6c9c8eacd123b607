package capability

import (
	"fmt"
	"reflect"
)

// Entry is one advertised capability of implementor type I.
// Build entries with Provide.
type Entry[I any] struct {
	token      Token
	conceal    func(I) Carrier
	concealMut func(I) MutCarrier
	err        error
}

// Provide declares that implementor type I advertises capability C.
//
// C must be an interface type that I satisfies; otherwise Emit reports the
// violation. Implementors should be pointer types so that lookups do not
// copy or allocate.
func Provide[C, I any]() Entry[I] {
	t := TokenOf[C]()
	if !t.IsInterface() {
		return Entry[I]{token: t, err: newError(KindEmit, RuleNotInterface, t,
			fmt.Sprintf("capability: %s is not an interface type", t))}
	}
	it := reflect.TypeFor[I]()
	if !t.implementedBy(it) {
		return Entry[I]{token: t, err: newError(KindEmit, RuleNotImplemented, t,
			fmt.Sprintf("capability: %s does not implement %s", it, t))}
	}
	return Entry[I]{
		token: t,
		conceal: func(x I) Carrier {
			return Conceal[C](any(x).(C))
		},
		concealMut: func(x I) MutCarrier {
			return ConcealMut[C](any(x).(C))
		},
	}
}

// Token returns the capability the entry advertises.
func (e Entry[I]) Token() Token { return e.token }

// Registry is the fixed, ordered capability list of implementor type I.
//
// A Registry is immutable once emitted and safe for concurrent use.
type Registry[I any] struct {
	entries     []Entry[I]
	diagnostics []error
}

// Emit builds the registry for I from entries, in declaration order.
//
// An empty list is rejected: nothing could be recovered from the object.
// A capability listed twice is kept once (only the first is reachable) and
// reported by Diagnostics.
func Emit[I any](entries ...Entry[I]) (*Registry[I], error) {
	if len(entries) == 0 {
		var zero Token
		return nil, newError(KindEmit, RuleEmpty, zero,
			fmt.Sprintf("capability: no capabilities listed for %s", reflect.TypeFor[I]()))
	}
	r := &Registry[I]{entries: make([]Entry[I], 0, len(entries))}
	for _, e := range entries {
		if e.err != nil {
			return nil, e.err
		}
		if e.conceal == nil {
			return nil, newError(KindEmit, RuleNotInterface, e.token,
				"capability: entry was not built with Provide")
		}
		if r.has(e.token) {
			r.diagnostics = append(r.diagnostics, newError(KindDiagnostic, RuleDuplicate, e.token,
				fmt.Sprintf("capability: %s listed more than once for %s; only the first is reachable",
					e.token, reflect.TypeFor[I]())))
			continue
		}
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// MustEmit is like Emit but panics on error.
// It is intended for package-level variables.
func MustEmit[I any](entries ...Entry[I]) *Registry[I] {
	r, err := Emit(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns a shared carrier viewing self as the capability named by t,
// or false when I does not advertise it.
func (r *Registry[I]) Lookup(self I, t Token) (Carrier, bool) {
	if r == nil {
		return Carrier{}, false
	}
	for i := range r.entries {
		if r.entries[i].token == t {
			return r.entries[i].conceal(self), true
		}
	}
	return Carrier{}, false
}

// LookupMut returns an exclusive carrier viewing self as the capability named
// by t, or false when I does not advertise it.
func (r *Registry[I]) LookupMut(self I, t Token) (MutCarrier, bool) {
	if r == nil {
		return MutCarrier{}, false
	}
	for i := range r.entries {
		if r.entries[i].token == t {
			return r.entries[i].concealMut(self), true
		}
	}
	return MutCarrier{}, false
}

// Tokens returns the advertised capabilities in declaration order.
func (r *Registry[I]) Tokens() []Token {
	if r == nil {
		return nil
	}
	out := make([]Token, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.token
	}
	return out
}

// Len returns the number of distinct advertised capabilities.
func (r *Registry[I]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Diagnostics returns non-fatal findings recorded during emission.
func (r *Registry[I]) Diagnostics() []error {
	if r == nil {
		return nil
	}
	return append([]error(nil), r.diagnostics...)
}

func (r *Registry[I]) has(t Token) bool {
	for _, e := range r.entries {
		if e.token == t {
			return true
		}
	}
	return false
}
