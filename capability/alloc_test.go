package capability

import "testing"

func TestQuery_DoesNotAllocate(t *testing.T) {
	x := &Downcastable{val: 1}
	o := &Only{val: 2}
	var sink uint32

	allocs := testing.AllocsPerRun(100, func() {
		if a, ok := Query[CapA](x.AsBase()); ok {
			sink += a.Number()
		}
		if b, ok := QueryMut[Bumper](x.AsBaseMut()); ok {
			b.Bump(0)
		}
		if a, ok := Sidecast[CapA](o); ok {
			sink += a.Number()
		}
		if _, ok := Query[CapB](o.AsBase()); ok {
			sink++
		}
	})
	if allocs != 0 {
		t.Fatalf("queries allocated %.1f times per run", allocs)
	}
	_ = sink
}

func BenchmarkQuery_Hit(b *testing.B) {
	x := &Downcastable{}
	r := x.AsBase()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Query[Bumper](r)
	}
}

func BenchmarkQuery_Miss(b *testing.B) {
	o := &Only{}
	r := o.AsBase()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Query[Bumper](r)
	}
}
