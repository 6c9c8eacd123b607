// Package bundle moves blocks between CAS backends as deterministic TAR
// archives.
//
// A bundle holds one regular file per block under blocks/<cid> and an
// optional index.json. Block entries are authoritative and always verified
// against their CIDs. The index is metadata: sizes, labels, the exporting
// backend's capabilities and, when recorded, pin state.
package bundle

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
)

// FormatVersion is the current index.json schema version.
const FormatVersion = 2

const (
	indexName   = "index.json"
	blockPrefix = "blocks/"
)

// epoch0 is the fixed ModTime of every entry.
var epoch0 = time.Unix(0, 0).UTC()

type index struct {
	Version      int          `json:"version"`
	CIDCodec     string       `json:"cidCodec"`
	Multihash    string       `json:"multihash"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Blocks       []indexBlock `json:"blocks"`
	Labels       []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID    string `json:"cid"`
	Size   int    `json:"size"`
	Pinned bool   `json:"pinned,omitempty"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// encode is deterministic: index holds only structs and slices.
func (idx index) encode() ([]byte, error) {
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func decodeIndex(b []byte) (index, error) {
	var idx index
	if err := json.Unmarshal(b, &idx); err != nil {
		return idx, fmt.Errorf("bundle: index.json: %w", err)
	}
	if idx.Version < 1 || idx.Version > FormatVersion {
		return idx, fmt.Errorf("bundle: index.json: unsupported version %d", idx.Version)
	}
	return idx, nil
}

// pinnedCIDs returns the CIDs the index marks as pinned.
func (idx index) pinnedCIDs() ([]cid.Cid, error) {
	var out []cid.Cid
	for _, b := range idx.Blocks {
		if !b.Pinned {
			continue
		}
		id, err := cid.Decode(b.CID)
		if err != nil {
			return nil, fmt.Errorf("bundle: index.json: pinned block %q: %w", b.CID, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// entryPath normalizes a TAR entry name. It rejects absolute escapes, empty
// elements and dot elements.
func entryPath(name string) (string, bool) {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}
