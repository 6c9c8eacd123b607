package cidutil

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

func TestSumDeterministic(t *testing.T) {
	a, err := Sum([]byte("hello"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	b, err := Sum([]byte("hello"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if !a.Equals(b) {
		t.Fatalf("expected deterministic CID")
	}
	if err := CheckProfile(a); err != nil {
		t.Fatalf("CheckProfile: %v", err)
	}
}

func TestMatches(t *testing.T) {
	id, err := Sum([]byte("x"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if !Matches(id, []byte("x")) {
		t.Fatalf("expected match")
	}
	if Matches(id, []byte("y")) {
		t.Fatalf("expected mismatch")
	}
	if Matches(cid.Undef, []byte("x")) {
		t.Fatalf("undefined CID never matches")
	}
}

func TestParse(t *testing.T) {
	id, err := Sum([]byte("parse me"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	got, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Equals(id) {
		t.Fatalf("Parse round trip mismatch")
	}
	if _, err := Parse("not-a-cid"); err == nil {
		t.Fatalf("expected decode error")
	}

	mh, err := multihash.Sum([]byte("dag"), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	other := cid.NewCidV1(cid.DagCBOR, mh)
	if _, err := Parse(other.String()); err == nil {
		t.Fatalf("expected profile error for dag-cbor CID")
	}
}
