package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ipfs/go-cid"
	"github.com/mattn/go-isatty"

	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/bundle"
	"xdao.co/sidecast/storage/casconfig"
	"xdao.co/sidecast/storage/casregistry"
	"xdao.co/sidecast/storage/signing"

	_ "xdao.co/sidecast/storage/grpccas"
	_ "xdao.co/sidecast/storage/ipfs"
	_ "xdao.co/sidecast/storage/localfs"
	_ "xdao.co/sidecast/storage/sqlitecas"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "caps":
		return cmdCaps(args[1:], out, errOut)
	case "ls":
		return cmdList(args[1:], out, errOut)
	case "stat":
		return cmdStat(args[1:], out, errOut)
	case "pin":
		return cmdPin(args[1:], out, errOut, true)
	case "unpin":
		return cmdPin(args[1:], out, errOut, false)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "receipt":
		return cmdReceipt(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cascli: CAS tool over any registered backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cascli put     [common flags] <file>")
	fmt.Fprintln(w, "  cascli get     [common flags] --cid <cid> [--out <file>] [--force]")
	fmt.Fprintln(w, "  cascli caps    [common flags]")
	fmt.Fprintln(w, "  cascli ls      [common flags]")
	fmt.Fprintln(w, "  cascli stat    [common flags] --cid <cid>")
	fmt.Fprintln(w, "  cascli pin     [common flags] --cid <cid>")
	fmt.Fprintln(w, "  cascli unpin   [common flags] --cid <cid>")
	fmt.Fprintln(w, "  cascli export  [common flags] [--cid <cid> ...] [--index] [--pins] --out <file.tar>")
	fmt.Fprintln(w, "  cascli import  [common flags] [--ignore-unknown] [--restore-pins] <file.tar>")
	fmt.Fprintln(w, "  cascli receipt [common flags] --cid <cid> --seed-file <file> [--alg ed25519|dilithium3] [--hash sha256]")
	fmt.Fprintln(w, "  cascli verify  <receipt.json>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --backend <name>   localfs (default), sqlite, ipfs, grpc")
	fmt.Fprintln(w, "  --config <file>    JSON or YAML multi-backend config (overrides --backend)")
	fmt.Fprintln(w, "  --list-backends    list supported backends and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  cascli put --backend localfs --localfs-dir <dir> <file>")
	fmt.Fprintln(w, "  cascli ls --backend sqlite --sqlite-path <file.db>")
	fmt.Fprintln(w, "  cascli pin --backend grpc --grpc-target <host:port> --cid <cid>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - ls, stat, pin and export without --cid need the backend to advertise the capability")
	fmt.Fprintln(w, "  - caps prints what each backend (and each member of a composite) advertises")
	fmt.Fprintln(w, "  - cascli stores raw blocks (CIDv1 raw + sha2-256)")
}

type commonFlags struct {
	backend      string
	configPath   string
	listBackends bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&c.configPath, "config", "", "Multi-backend config file (JSON or YAML)")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *commonFlags) openCAS() (storage.CAS, func() error, error) {
	if c.configPath != "" {
		cfg, err := casconfig.LoadFile(c.configPath)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(casregistry.UsageCLI, "")
	}
	return casregistry.Open(c.backend, casregistry.UsageCLI)
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// command is the parsed state shared by every subcommand that opens a CAS.
type command struct {
	fs     *flag.FlagSet
	common commonFlags
	cidStr string
}

func newCommand(name string, errOut io.Writer, withCID bool) *command {
	c := &command{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	c.fs.SetOutput(errOut)
	c.common.add(c.fs)
	if withCID {
		c.fs.StringVar(&c.cidStr, "cid", "", "CID")
	}
	return c
}

// parse returns a non-negative exit code when the command should stop.
func (c *command) parse(args []string, out io.Writer) int {
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if c.common.listBackends {
		printBackends(out)
		return 0
	}
	return -1
}

func (c *command) cid(errOut io.Writer) (cid.Cid, bool) {
	if c.cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return cid.Undef, false
	}
	id, err := cid.Decode(c.cidStr)
	if err != nil || !id.Defined() {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return cid.Undef, false
	}
	return id, true
}

func (c *command) open(errOut io.Writer) (storage.CAS, func(), bool) {
	cas, closeFn, err := c.common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return nil, nil, false
	}
	return cas, func() {
		if closeFn != nil {
			_ = closeFn()
		}
	}, true
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("put", errOut, false)
	if code := c.parse(args, out); code >= 0 {
		return code
	}
	if c.fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli put [common flags] <file>")
		return 2
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	p := c.fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	id, err := cas.Put(b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("get", errOut, true)
	var outPath string
	var force bool
	c.fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")
	c.fs.BoolVar(&force, "force", false, "Write binary blocks to a terminal")
	if code := c.parse(args, out); code >= 0 {
		return code
	}
	if c.fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli get [common flags] --cid <cid> [--out <file>] [--force]")
		return 2
	}
	id, ok := c.cid(errOut)
	if !ok {
		return 2
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	b, err := cas.Get(id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if outPath == "" {
		if !force && !utf8.Valid(b) && isTerminal(out) {
			fmt.Fprintln(errOut, "refusing to write a binary block to a terminal (use --out or --force)")
			return 1
		}
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdCaps(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("caps", errOut, false)
	if code := c.parse(args, out); code >= 0 {
		return code
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	err := storage.Walk(cas, func(name string, member storage.CAS) error {
		if name == "" {
			name = "."
		}
		_, err := fmt.Fprintf(out, "%s\t%s\n", name, strings.Join(storage.Capabilities(member), ","))
		return err
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdList(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("ls", errOut, false)
	if code := c.parse(args, out); code >= 0 {
		return code
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	ids, err := storage.List(cas)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(out, id.String())
	}
	return 0
}

func cmdStat(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("stat", errOut, true)
	if code := c.parse(args, out); code >= 0 {
		return code
	}
	id, ok := c.cid(errOut)
	if !ok {
		return 2
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	size, err := storage.Size(cas, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	pinned := "-"
	switch p, err := storage.Pinned(cas, id); {
	case err == nil:
		pinned = fmt.Sprint(p)
	case !storage.IsUnsupported(err):
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "cid\t%s\nsize\t%d\npinned\t%s\n", id, size, pinned)
	return 0
}

func cmdPin(args []string, out io.Writer, errOut io.Writer, pin bool) int {
	name := "unpin"
	if pin {
		name = "pin"
	}
	c := newCommand(name, errOut, true)
	if code := c.parse(args, out); code >= 0 {
		return code
	}
	id, ok := c.cid(errOut)
	if !ok {
		return 2
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	op := storage.Unpin
	if pin {
		op = storage.Pin
	}
	if err := op(cas, id); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("export", errOut, false)
	var ids multiString
	var outPath string
	var index, pins bool
	c.fs.Var(&ids, "cid", "CID to export (repeatable; default every listed CID)")
	c.fs.StringVar(&outPath, "out", "", "Output bundle file")
	c.fs.BoolVar(&index, "index", false, "Include index.json")
	c.fs.BoolVar(&pins, "pins", false, "Record pin state in index.json (backend must support pinning)")
	if code := c.parse(args, out); code >= 0 {
		return code
	}
	if outPath == "" || c.fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli export [common flags] [--cid <cid> ...] [--index] [--pins] --out <file.tar>")
		return 2
	}

	cids := make([]cid.Cid, 0, len(ids))
	for _, s := range ids {
		id, err := cid.Decode(s)
		if err != nil {
			fmt.Fprintln(errOut, storage.ErrInvalidCID)
			return 2
		}
		cids = append(cids, id)
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(errOut, "create %s: %v\n", outPath, err)
		return 1
	}
	opts := bundle.ExportOptions{IncludeIndex: index, RecordPins: pins}
	if len(cids) == 0 {
		err = bundle.ExportAll(f, cas, opts)
	} else {
		err = bundle.Export(f, cas, cids, opts)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("import", errOut, false)
	var ignoreUnknown, restorePins bool
	c.fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown bundle entries")
	c.fs.BoolVar(&restorePins, "restore-pins", false, "Pin blocks the bundle index marks as pinned")
	if code := c.parse(args, out); code >= 0 {
		return code
	}
	if c.fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli import [common flags] [--ignore-unknown] [--restore-pins] <file.tar>")
		return 2
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	f, err := os.Open(c.fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()

	if err := bundle.ImportWithOptions(f, cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown, RestorePins: restorePins}); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdReceipt(args []string, out io.Writer, errOut io.Writer) int {
	c := newCommand("receipt", errOut, true)
	var seedFile, seedLabel, alg, hashAlg string
	c.fs.StringVar(&seedFile, "seed-file", "", "File holding a hex-encoded 32-byte seed")
	c.fs.StringVar(&seedLabel, "seed-label", "", "Derive the signing seed for this label (optional)")
	c.fs.StringVar(&alg, "alg", signing.AlgEd25519, "Signature algorithm: ed25519|dilithium3")
	c.fs.StringVar(&hashAlg, "hash", "sha256", "Digest: sha256|sha512|sha3-256")
	if code := c.parse(args, out); code >= 0 {
		return code
	}
	id, ok := c.cid(errOut)
	if !ok {
		return 2
	}
	if seedFile == "" {
		fmt.Fprintln(errOut, "missing --seed-file")
		return 2
	}

	signer, err := loadSigner(seedFile, seedLabel, alg, hashAlg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	cas, done, ok := c.open(errOut)
	if !ok {
		return 1
	}
	defer done()

	wrapped, err := signing.Wrap(cas, signer)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	rec, err := wrapped.Receipt(id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: cascli verify <receipt.json>")
		return 2
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	var rec storage.Receipt
	if err := json.Unmarshal(b, &rec); err != nil {
		fmt.Fprintf(errOut, "parse receipt: %v\n", err)
		return 1
	}
	if err := signing.Verify(rec); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "OK %s %s\n", rec.CID, rec.Signer)
	return 0
}

func loadSigner(seedFile, label, alg, hashAlg string) (*signing.Signer, error) {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("seed file: %w", err)
	}
	if label != "" {
		if seed, err = signing.DeriveSeed(seed, label); err != nil {
			return nil, err
		}
	}
	switch alg {
	case signing.AlgEd25519:
		return signing.NewEd25519(seed, hashAlg)
	case signing.AlgDilithium3:
		return signing.NewDilithium3(seed, hashAlg)
	default:
		return nil, fmt.Errorf("unsupported --alg %q", alg)
	}
}

type multiString []string

func (m *multiString) String() string { return strings.Join(*m, ",") }

func (m *multiString) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("empty value")
	}
	*m = append(*m, v)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
