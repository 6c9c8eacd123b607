package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

//go:generate go run xdao.co/sidecast/cmd/capgen -type CAS -caps storage.CAS,storage.Sizer,storage.Pinner

// CAS is a content-addressable store backed by the local Kubo "ipfs" CLI.
//
// Properties:
// - Offline: operates on the local IPFS repo; does not require an IPFS daemon.
// - Deterministic: no wall-clock usage; validates bytes against the requested CID.
// - Best-effort: relies on an external "ipfs" binary (configurable).
//
// CID contract: CIDv1 raw + sha2-256, matching cidutil.Sum.
//
// Advertised capabilities: storage.Sizer (block stat) and storage.Pinner
// (pin add/rm/ls). It does not advertise storage.Lister: a Kubo repo holds
// blocks from unrelated sources.
//
// Note: This package name is "ipfs" for familiarity, but it does not embed a
// network client; it shells out to the local Kubo CLI.
type CAS struct {
	bin string
	env []string
	pin bool
}

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
	// Pin pins every block on Put.
	Pin bool
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, pin: opts.Pin}
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	// Store as a raw block with explicit parameters so the CID matches the CID contract.
	out, err := c.run(data,
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--cid-version=1",
		"--pin="+strconv.FormatBool(c.pin),
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if got.String() != id.String() {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Matches(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (c *CAS) Size(id cid.Cid) (int64, error) {
	if !id.Defined() {
		return 0, storage.ErrInvalidCID
	}
	out, err := c.run(nil, "block", "stat", "--offline", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	return parseBlockStatSize(out)
}

func (c *CAS) Pin(id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	_, err := c.run(nil, "pin", "add", "--quiet", id.String())
	if err != nil && isLikelyNotFound(err) {
		return storage.ErrNotFound
	}
	return err
}

// Unpin removes the pin. Unpinning a block that is not pinned is not an error.
func (c *CAS) Unpin(id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	_, err := c.run(nil, "pin", "rm", id.String())
	if err != nil && isNotPinned(err) {
		return nil
	}
	return err
}

func (c *CAS) Pinned(id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, storage.ErrInvalidCID
	}
	_, err := c.run(nil, "pin", "ls", "--quiet", id.String())
	if err == nil {
		return true, nil
	}
	if isNotPinned(err) {
		return false, nil
	}
	return false, err
}

func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

// parseBlockStatSize reads the "Size: N" line of `ipfs block stat`.
func parseBlockStatSize(out []byte) (int64, error) {
	for _, line := range strings.Split(string(out), "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "size") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ipfs: unexpected block stat size %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("ipfs: block stat output has no size")
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}

func isNotPinned(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not pinned")
}
