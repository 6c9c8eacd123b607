package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// RecordPins stores each block's pin state in index.json. The source
	// must advertise storage.Pinner. Implies IncludeIndex.
	RecordPins bool
}

// Export writes a deterministic TAR bundle containing the blocks for ids.
//
// Entries are written in CID string order with normalized headers, so the
// same blocks and options always produce the same bytes. Every block is
// verified against its CID before it is written.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	sorted, err := sortedUnique(ids)
	if err != nil {
		return err
	}
	labels, err := sortedLabels(opts.Labels)
	if err != nil {
		return err
	}

	var pins storage.Pinner
	if opts.RecordPins {
		p, ok := capability.Sidecast[storage.Pinner](cas)
		if !ok {
			return fmt.Errorf("bundle: record pins: %w", storage.ErrUnsupported)
		}
		pins = p
	}

	tw := tar.NewWriter(w)
	idx := index{
		Version:   FormatVersion,
		CIDCodec:  "raw",
		Multihash: "sha2-256",
		Labels:    labels,
		Blocks:    make([]indexBlock, 0, len(sorted)),
	}
	for _, id := range sorted {
		b, err := cas.Get(id)
		if err != nil {
			return abort(tw, err)
		}
		if !cidutil.Matches(id, b) {
			return abort(tw, storage.ErrCIDMismatch)
		}
		if err := writeEntry(tw, blockPrefix+id.String(), b); err != nil {
			return abort(tw, err)
		}
		entry := indexBlock{CID: id.String(), Size: len(b)}
		if pins != nil {
			if entry.Pinned, err = pins.Pinned(id); err != nil {
				return abort(tw, err)
			}
		}
		idx.Blocks = append(idx.Blocks, entry)
	}

	if opts.IncludeIndex || opts.RecordPins {
		idx.Capabilities = storage.Capabilities(cas)
		b, err := idx.encode()
		if err != nil {
			return abort(tw, err)
		}
		if err := writeEntry(tw, indexName, b); err != nil {
			return abort(tw, err)
		}
	}
	return tw.Close()
}

// ExportAll exports every block cas holds. The CAS must advertise
// storage.Lister; otherwise ExportAll returns storage.ErrUnsupported and
// writes nothing.
func ExportAll(w io.Writer, cas storage.CAS, opts ExportOptions) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	l, ok := capability.Sidecast[storage.Lister](cas)
	if !ok {
		return fmt.Errorf("bundle: export all: %w", storage.ErrUnsupported)
	}
	ids, err := l.List()
	if err != nil {
		return err
	}
	return Export(w, cas, ids, opts)
}

func sortedUnique(ids []cid.Cid) ([]cid.Cid, error) {
	byKey := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return nil, storage.ErrInvalidCID
		}
		byKey[id.String()] = id
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]cid.Cid, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out, nil
}

func sortedLabels(labels map[string]cid.Cid) ([]indexLabel, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	out := make([]indexLabel, 0, len(labels))
	for name, id := range labels {
		if name == "" {
			return nil, errors.New("bundle: empty label key")
		}
		if !id.Defined() {
			return nil, storage.ErrInvalidCID
		}
		out = append(out, indexLabel{Name: name, CID: id.String()})
	}
	slices.SortFunc(out, func(a, b indexLabel) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, nil
}

func abort(tw *tar.Writer, err error) error {
	_ = tw.Close()
	return err
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}
