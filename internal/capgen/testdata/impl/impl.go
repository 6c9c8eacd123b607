// Package impl is loaded by the capgen tests.
package impl

import "xdao.co/sidecast/capability"

type Namer interface {
	capability.Base
	Name() string
}

type Sizer interface {
	capability.Base
	Size() int
}

type NotIface struct{}

type Widget struct{}

func (w *Widget) Name() string { return "widget" }
