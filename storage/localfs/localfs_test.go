package localfs

import (
	"os"
	"path/filepath"
	"testing"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/testkit"
)

func newCAS(t *testing.T) storage.CAS {
	t.Helper()
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return cas
}

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, newCAS)
}

func TestLocalFS_Capabilities(t *testing.T) {
	testkit.RunCapabilityConformance(t, newCAS, []string{"storage.CAS", "storage.Lister", "storage.Sizer"})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	dir := t.TempDir()
	cas, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := cas.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect hash mismatch.
	_, err = cas.Get(id)
	if err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not "repair" or overwrite the corrupted object.
	_, err = cas.Put(orig)
	if err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}

	wantID, err := cidutil.Sum(orig)
	if err != nil {
		t.Fatalf("cidutil.Sum failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

func TestLocalFS_ListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	cas, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id, err := cas.Put([]byte("listed"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("not a block"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".lock"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ids, err := storage.List(cas)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || !ids[0].Equals(id) {
		t.Fatalf("List: got %v want [%s]", ids, id)
	}
}

func TestLocalFS_NotAPinner(t *testing.T) {
	cas := newCAS(t)
	if _, ok := capability.Query[storage.Pinner](cas.AsBase()); ok {
		t.Fatalf("localfs must not advertise Pinner")
	}
	id, err := cas.Put([]byte("p"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := storage.Pin(cas, id); !storage.IsUnsupported(err) {
		t.Fatalf("Pin: got %v want ErrUnsupported", err)
	}
}
