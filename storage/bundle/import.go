package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips entries that are neither blocks nor metadata.
	// By default an unknown entry fails the import.
	IgnoreUnknown bool
	// RestorePins pins every block the index marks as pinned once all blocks
	// are stored. The destination must advertise storage.Pinner if any block
	// is marked.
	RestorePins bool
}

// Import reads a bundle from r and stores every block in cas, failing
// closed on unknown entries.
func Import(r io.Reader, cas storage.CAS) error {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and stores every block in cas.
//
// Each block must match both its entry name and the CID cas reports for it.
// Blocks stored before a failure stay stored.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	stored := map[string]struct{}{}
	var idx *index

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		name, ok := entryPath(h.Name)
		if !ok {
			return fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		switch {
		case name == indexName:
			b, err := io.ReadAll(tr)
			if err != nil {
				return err
			}
			if !opts.RestorePins {
				continue
			}
			decoded, err := decodeIndex(b)
			if err != nil {
				return err
			}
			idx = &decoded
		case strings.HasPrefix(name, "manifests/"):
			continue
		case strings.HasPrefix(name, blockPrefix):
			id, err := importBlock(tr, cas, strings.TrimPrefix(name, blockPrefix))
			if err != nil {
				return err
			}
			key := id.String()
			if _, dup := stored[key]; dup {
				return fmt.Errorf("bundle: duplicate block entry: %s", key)
			}
			stored[key] = struct{}{}
		default:
			if opts.IgnoreUnknown {
				continue
			}
			return fmt.Errorf("bundle: unknown entry: %s", name)
		}
	}

	if idx == nil {
		return nil
	}
	return restorePins(cas, *idx, stored)
}

func importBlock(r io.Reader, cas storage.CAS, name string) (cid.Cid, error) {
	id, err := cid.Decode(name)
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return cid.Undef, err
	}
	if !cidutil.Matches(id, payload) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	got, err := cas.Put(payload)
	if err != nil {
		return cid.Undef, err
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func restorePins(cas storage.CAS, idx index, stored map[string]struct{}) error {
	ids, err := idx.pinnedCIDs()
	if err != nil || len(ids) == 0 {
		return err
	}
	p, ok := capability.SidecastMut[storage.Pinner](cas)
	if !ok {
		return fmt.Errorf("bundle: restore pins: %w", storage.ErrUnsupported)
	}
	for _, id := range ids {
		if _, ok := stored[id.String()]; !ok {
			return fmt.Errorf("bundle: index pins %s but the bundle does not carry it", id)
		}
		if err := p.Pin(id); err != nil {
			return fmt.Errorf("bundle: pin %s: %w", id, err)
		}
	}
	return nil
}
