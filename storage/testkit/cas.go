// Package testkit holds conformance suites shared by every CAS backend.
package testkit

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

var casChecks = []struct {
	name string
	run  func(t *testing.T, cas storage.CAS)
}{
	{"PutGetRoundTrip", checkRoundTrip},
	{"PutIdempotent", checkIdempotent},
	{"HasAndNotFound", checkHasAndNotFound},
	{"RejectUndefCID", checkUndef},
	{"DistinctBlocks", checkDistinct},
	{"NoAliasing", checkNoAliasing},
}

// RunCASConformance runs the base CAS contract against fresh instances from
// newCAS, one per subtest.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	for _, c := range casChecks {
		t.Run(c.name, func(t *testing.T) { c.run(t, newCAS(t)) })
	}
}

func mustPut(t *testing.T, cas storage.CAS, b []byte) cid.Cid {
	t.Helper()
	id, err := cas.Put(b)
	if err != nil {
		t.Fatalf("Put(%q) failed: %v", b, err)
	}
	return id
}

func checkRoundTrip(t *testing.T, cas storage.CAS) {
	want := []byte("hello, sidecast storage")
	id := mustPut(t, cas, want)
	wantID, err := cidutil.Sum(want)
	if err != nil {
		t.Fatalf("cidutil.Sum failed: %v", err)
	}
	if !id.Equals(wantID) {
		t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
	}

	got, err := cas.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Get bytes mismatch")
	}
	if !cidutil.Matches(id, got) {
		t.Fatalf("Get returned bytes not matching requested CID")
	}
}

func checkIdempotent(t *testing.T, cas storage.CAS) {
	b := []byte("same bytes")
	id1 := mustPut(t, cas, b)
	id2 := mustPut(t, cas, b)
	if !id1.Equals(id2) {
		t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
	}
}

func checkHasAndNotFound(t *testing.T, cas storage.CAS) {
	b := []byte("missing")
	id, err := cidutil.Sum(b)
	if err != nil {
		t.Fatalf("cidutil.Sum failed: %v", err)
	}
	if cas.Has(id) {
		t.Fatalf("Has returned true for missing CID")
	}
	if _, err := cas.Get(id); !storage.IsNotFound(err) {
		t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
	}

	mustPut(t, cas, b)
	if !cas.Has(id) {
		t.Fatalf("Has returned false after Put")
	}
}

func checkUndef(t *testing.T, cas storage.CAS) {
	if cas.Has(cid.Undef) {
		t.Fatalf("Has should be false for undefined CID")
	}
	if _, err := cas.Get(cid.Undef); err == nil {
		t.Fatalf("Get should fail for undefined CID")
	}
}

func checkDistinct(t *testing.T, cas storage.CAS) {
	ids := make(map[string][]byte)
	for i := range 5 {
		b := []byte(fmt.Sprintf("block-%d", i))
		ids[mustPut(t, cas, b).String()] = b
	}
	if len(ids) != 5 {
		t.Fatalf("distinct payloads collided: %d CIDs", len(ids))
	}
	for s, want := range ids {
		id, err := cid.Decode(s)
		if err != nil {
			t.Fatalf("decode %s: %v", s, err)
		}
		got, err := cas.Get(id)
		if err != nil || !bytes.Equal(got, want) {
			t.Fatalf("Get %s: %q %v", s, got, err)
		}
	}
}

func checkNoAliasing(t *testing.T, cas storage.CAS) {
	in := []byte("do not alias me")
	id := mustPut(t, cas, in)
	in[0] = 'X'

	got, err := cas.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "do not alias me" {
		t.Fatalf("stored block changed with the caller's slice: %q", got)
	}
	got[0] = 'Y'
	again, err := cas.Get(id)
	if err != nil || string(again) != "do not alias me" {
		t.Fatalf("stored block changed with a returned slice: %q %v", again, err)
	}
}
