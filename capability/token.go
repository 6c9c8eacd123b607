package capability

import "reflect"

// Token identifies one capability. Tokens are comparable and equal only to
// tokens of the same static type. The zero Token identifies nothing.
type Token struct {
	rt reflect.Type
}

// TokenOf returns the token of capability C.
func TokenOf[C any]() Token {
	return Token{rt: reflect.TypeFor[C]()}
}

// IsZero reports whether t identifies no capability.
func (t Token) IsZero() bool { return t.rt == nil }

// IsInterface reports whether t names an interface type.
// Only interface types are capabilities.
func (t Token) IsInterface() bool {
	return t.rt != nil && t.rt.Kind() == reflect.Interface
}

// String returns the qualified capability name, e.g. "storage.Lister".
func (t Token) String() string {
	if t.rt == nil {
		return "<none>"
	}
	return t.rt.String()
}

// implementedBy reports whether values of type rt satisfy the capability.
func (t Token) implementedBy(rt reflect.Type) bool {
	if !t.IsInterface() || rt == nil {
		return false
	}
	return rt.Implements(t.rt)
}
