// Package capability lets an object known only through its base capability be
// asked, at run time, for another capability it advertises.
//
// A capability is an interface type. An implementor lists the capabilities it
// provides once, at its definition site, either with the runtime emitter
// (Emit/Provide) or with the capgen source emitter:
//
//	//go:generate capgen -type Widget -caps Container,Scrollable
//
// Callers never touch carriers directly. They promote a value to a base
// handle and ask for the capability they want:
//
//	if c, ok := capability.Query[Container](w.AsBase()); ok {
//		c.Children()
//	}
//
// Absence is a normal result, not an error.
//
// Aliasing contract:
//   - Any number of Ref handles (and the views queried from them) may be used
//     at the same time, provided nothing mutates the object.
//   - A MutRef, and every view obtained through QueryMut, is exclusive: it must
//     not be used concurrently with any other handle to the same object.
//   - Views must not be retained past the lifetime of the handle they came from.
//
// Go does not check these rules; they are caller obligations.
package capability
