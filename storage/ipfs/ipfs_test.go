package ipfs

import (
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

func TestParseBlockStatSize(t *testing.T) {
	n, err := parseBlockStatSize([]byte("Key: bafkreiabc\nSize: 42\n"))
	if err != nil {
		t.Fatalf("parseBlockStatSize: %v", err)
	}
	if n != 42 {
		t.Fatalf("got %d want 42", n)
	}
	if _, err := parseBlockStatSize([]byte("Key: x\n")); err == nil {
		t.Fatalf("expected error for missing size")
	}
	if _, err := parseBlockStatSize([]byte("Size: many\n")); err == nil {
		t.Fatalf("expected error for non-numeric size")
	}
}

func TestErrorClassification(t *testing.T) {
	if !isLikelyNotFound(errors.New("ipfs: block not found locally")) {
		t.Fatalf("expected not found")
	}
	if isLikelyNotFound(nil) || isNotPinned(nil) {
		t.Fatalf("nil is neither")
	}
	if !isNotPinned(errors.New("ipfs: Error: bafk... is not pinned")) {
		t.Fatalf("expected not pinned")
	}
}

func TestIPFS_AdvertisedCapabilities(t *testing.T) {
	c := New(Options{Bin: "/nonexistent/ipfs"})
	got := storage.Capabilities(c)
	want := []string{"storage.CAS", "storage.Sizer", "storage.Pinner"}
	if len(got) != len(want) {
		t.Fatalf("capabilities: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("capabilities: got %v want %v", got, want)
		}
	}
	if _, ok := capability.Sidecast[storage.Lister](c); ok {
		t.Fatalf("ipfs must not advertise Lister")
	}
	if _, err := storage.List(c); !storage.IsUnsupported(err) {
		t.Fatalf("List: got %v want ErrUnsupported", err)
	}
}

func TestIPFS_MissingBinary(t *testing.T) {
	c := New(Options{Bin: "/nonexistent/ipfs"})
	if _, err := c.Put([]byte("x")); err == nil {
		t.Fatalf("expected error when the ipfs binary is missing")
	}
	if _, err := storage.Size(c, cidOf(t, "x")); err == nil {
		t.Fatalf("expected error when the ipfs binary is missing")
	}
}

func cidOf(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.Sum([]byte(s))
	if err != nil {
		t.Fatalf("cidutil.Sum: %v", err)
	}
	return id
}
