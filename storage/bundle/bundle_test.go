package bundle_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/bundle"
	"xdao.co/sidecast/storage/ipfs"
	"xdao.co/sidecast/storage/localfs"
	"xdao.co/sidecast/storage/memory"
)

func TestBundle_ExportIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	cas, err := localfs.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	id1, err := cas.Put([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := cas.Put([]byte("world"))
	if err != nil {
		t.Fatal(err)
	}

	var outA bytes.Buffer
	if err := bundle.Export(&outA, cas, []cid.Cid{id2, id1}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := bundle.Export(&outB, cas, []cid.Cid{id1, id2}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	src, err := localfs.New(srcDir)
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("payload")
	id, err := src.Put(payload)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, []cid.Cid{id}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dstDir := t.TempDir()
	dst, err := localfs.New(dstDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := bundle.Import(bytes.NewReader(buf.Bytes()), dst); err != nil {
		t.Fatal(err)
	}

	got, err := dst.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	goodCID, err := cidutil.Sum(good)
	if err != nil {
		t.Fatal(err)
	}
	otherCID, err := cidutil.Sum([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	if goodCID.String() == otherCID.String() {
		t.Fatal("expected different CIDs")
	}

	// Name says "otherCID" but bytes are "good" => computed CID mismatch.
	bundleBytes := makeDeterministicTar(t, "blocks/"+otherCID.String(), good)

	dstDir := t.TempDir()
	dst, err := localfs.New(dstDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := bundle.Import(bytes.NewReader(bundleBytes), dst); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		Uid:      0,
		Gid:      0,
		Uname:    "",
		Gname:    "",
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBundle_ExportAllUsesLister(t *testing.T) {
	src := memory.New()
	var ids []cid.Cid
	for _, s := range []string{"one", "two", "three"} {
		id, err := src.Put([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	var all, explicit bytes.Buffer
	if err := bundle.ExportAll(&all, src, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if err := bundle.Export(&explicit, src, ids, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !bytes.Equal(all.Bytes(), explicit.Bytes()) {
		t.Fatalf("ExportAll should match Export over every listed CID")
	}

	dst := memory.New()
	if err := bundle.Import(bytes.NewReader(all.Bytes()), dst); err != nil {
		t.Fatalf("Import: %v", err)
	}
	for _, id := range ids {
		if !dst.Has(id) {
			t.Fatalf("missing %s after import", id)
		}
	}
}

func TestBundle_ExportAllUnsupported(t *testing.T) {
	// The ipfs adapter cannot enumerate its repo; nothing is executed.
	cas := ipfs.New(ipfs.Options{Bin: "/nonexistent/ipfs"})
	var buf bytes.Buffer
	err := bundle.ExportAll(&buf, cas, bundle.ExportOptions{})
	if !storage.IsUnsupported(err) {
		t.Fatalf("ExportAll: got %v want ErrUnsupported", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("ExportAll wrote %d bytes on failure", buf.Len())
	}
}

func TestBundle_ImportRejectsUnknownEntry(t *testing.T) {
	b := makeDeterministicTar(t, "notes/readme.txt", []byte("hi"))
	if err := bundle.Import(bytes.NewReader(b), memory.New()); err == nil {
		t.Fatalf("expected unknown entry error")
	}
	if err := bundle.ImportWithOptions(bytes.NewReader(b), memory.New(), bundle.ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown: %v", err)
	}
}

func TestBundle_PinsRoundTrip(t *testing.T) {
	src := memory.New()
	kept, err := src.Put([]byte("kept"))
	if err != nil {
		t.Fatal(err)
	}
	loose, err := src.Put([]byte("loose"))
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.Pin(src, kept); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := bundle.ExportAll(&buf, src, bundle.ExportOptions{RecordPins: true}); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}

	plain := memory.New()
	if err := bundle.Import(bytes.NewReader(buf.Bytes()), plain); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if pinned, _ := plain.Pinned(kept); pinned {
		t.Fatalf("pins must only be restored on request")
	}

	dst := memory.New()
	if err := bundle.ImportWithOptions(bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{RestorePins: true}); err != nil {
		t.Fatalf("ImportWithOptions: %v", err)
	}
	if pinned, err := dst.Pinned(kept); err != nil || !pinned {
		t.Fatalf("kept: pinned=%v err=%v", pinned, err)
	}
	if pinned, err := dst.Pinned(loose); err != nil || pinned {
		t.Fatalf("loose: pinned=%v err=%v", pinned, err)
	}
}

func TestBundle_RecordPinsNeedsPinner(t *testing.T) {
	src, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id, err := src.Put([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	err = bundle.Export(&buf, src, []cid.Cid{id}, bundle.ExportOptions{RecordPins: true})
	if !storage.IsUnsupported(err) {
		t.Fatalf("Export: got %v want ErrUnsupported", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("Export wrote %d bytes on failure", buf.Len())
	}
}

func TestBundle_RestorePinsNeedsPinner(t *testing.T) {
	src := memory.New()
	id, err := src.Put([]byte("pinned"))
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Pin(id); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := bundle.ExportAll(&buf, src, bundle.ExportOptions{RecordPins: true}); err != nil {
		t.Fatal(err)
	}

	dst, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = bundle.ImportWithOptions(bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{RestorePins: true})
	if !storage.IsUnsupported(err) {
		t.Fatalf("ImportWithOptions: got %v want ErrUnsupported", err)
	}
	if !dst.Has(id) {
		t.Fatalf("blocks are stored before pins are restored")
	}
}

func TestBundle_RestorePinsRejectsMissingBlock(t *testing.T) {
	id, err := cidutil.Sum([]byte("absent"))
	if err != nil {
		t.Fatal(err)
	}
	idx := []byte(`{"version":2,"cidCodec":"raw","multihash":"sha2-256","blocks":[{"cid":"` + id.String() + `","size":6,"pinned":true}]}` + "\n")
	b := makeDeterministicTar(t, "index.json", idx)
	err = bundle.ImportWithOptions(bytes.NewReader(b), memory.New(), bundle.ImportOptions{RestorePins: true})
	if err == nil {
		t.Fatalf("expected error for a pinned block missing from the bundle")
	}
}

func TestBundle_RejectsUnsafePaths(t *testing.T) {
	for _, name := range []string{"../blocks/x", "blocks/../x", "blocks//x", "."} {
		b := makeDeterministicTar(t, name, []byte("x"))
		if err := bundle.ImportWithOptions(bytes.NewReader(b), memory.New(), bundle.ImportOptions{IgnoreUnknown: true}); err == nil {
			t.Fatalf("%q: expected invalid path error", name)
		}
	}
}
