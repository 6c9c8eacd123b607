package capability_test

import (
	"fmt"

	"xdao.co/sidecast/capability"
)

type Widget interface {
	capability.Base
	Name() string
}

type Container interface {
	Widget
	Children() []Widget
}

type Label struct{ text string }

func (l *Label) Name() string { return "label:" + l.text }

func (l *Label) Lookup(t capability.Token) (capability.Carrier, bool) {
	switch t {
	case capability.TokenOf[Widget]():
		return capability.Conceal[Widget](l), true
	}
	return capability.Carrier{}, false
}

func (l *Label) LookupMut(t capability.Token) (capability.MutCarrier, bool) {
	switch t {
	case capability.TokenOf[Widget]():
		return capability.ConcealMut[Widget](l), true
	}
	return capability.MutCarrier{}, false
}

func (l *Label) AsBase() capability.Ref       { return capability.Shared(l) }
func (l *Label) AsBaseMut() capability.MutRef { return capability.Exclusive(l) }

type Window struct {
	title string
	kids  []Widget
}

var windowCaps = capability.MustEmit(
	capability.Provide[Widget, *Window](),
	capability.Provide[Container, *Window](),
)

func (w *Window) Name() string       { return "window:" + w.title }
func (w *Window) Children() []Widget { return w.kids }

func (w *Window) Lookup(t capability.Token) (capability.Carrier, bool) {
	return windowCaps.Lookup(w, t)
}

func (w *Window) LookupMut(t capability.Token) (capability.MutCarrier, bool) {
	return windowCaps.LookupMut(w, t)
}

func (w *Window) AsBase() capability.Ref       { return capability.Shared(w) }
func (w *Window) AsBaseMut() capability.MutRef { return capability.Exclusive(w) }

// leaves collects every widget that is not a container, descending into
// containers found by sidecast.
func leaves(w Widget) []string {
	c, ok := capability.Query[Container](w.AsBase())
	if !ok {
		return []string{w.Name()}
	}
	var out []string
	for _, kid := range c.Children() {
		out = append(out, leaves(kid)...)
	}
	return out
}

func Example() {
	root := &Window{title: "main", kids: []Widget{
		&Label{text: "a"},
		&Window{title: "inner", kids: []Widget{&Label{text: "b"}}},
		&Label{text: "c"},
	}}
	fmt.Println(leaves(root))
	// Output: [label:a label:b label:c]
}

func ExampleQuery_absent() {
	_, ok := capability.Query[Container]((&Label{text: "x"}).AsBase())
	fmt.Println(ok)
	// Output: false
}
