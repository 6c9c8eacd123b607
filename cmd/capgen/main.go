// Command capgen writes the capability.Base methods for an implementor type.
//
// Typical use, next to the type declaration:
//
//	//go:generate go run xdao.co/sidecast/cmd/capgen -type CAS -caps storage.CAS,storage.Lister,storage.Sizer
//
// The capability list is authoritative: anything not listed can never be
// reached by a query. An empty list is refused.
//
// With -nocheck the package is not type-checked, so every qualified
// capability needs its package named with -import:
//
//	capgen -nocheck -package ui -type Widget -caps Container,storage.Lister -import storage=xdao.co/sidecast/storage
package main

import (
	"errors"
	"flag"
	"fmt"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/sidecast/internal/capgen"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// importList collects repeated -import name=path flags.
type importList []capgen.Import

func (l *importList) String() string {
	parts := make([]string, 0, len(*l))
	for _, imp := range *l {
		parts = append(parts, imp.Name+"="+imp.Path)
	}
	return strings.Join(parts, ",")
}

func (l *importList) Set(v string) error {
	name, p, ok := strings.Cut(v, "=")
	if !ok {
		name, p = "", v
	}
	name, p = strings.TrimSpace(name), strings.TrimSpace(p)
	if p == "" || (name != "" && !token.IsIdentifier(name)) {
		return fmt.Errorf("invalid import %q, want name=path", v)
	}
	*l = append(*l, capgen.Import{Name: name, Path: p})
	return nil
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("capgen", flag.ContinueOnError)
	fs.SetOutput(errOut)
	typeName := fs.String("type", "", "Implementor type name (required)")
	capsFlag := fs.String("caps", "", "Comma-separated capabilities, in lookup order (required)")
	output := fs.String("output", "", "Output file (default <type>_capabilities.go)")
	dir := fs.String("dir", ".", "Package directory")
	value := fs.Bool("value", false, "Use a value receiver instead of a pointer receiver")
	receiver := fs.String("receiver", "x", "Receiver name")
	noCheck := fs.Bool("nocheck", false, "Skip type checking (requires -package)")
	pkgName := fs.String("package", "", "Package name when -nocheck is set")
	dryRun := fs.Bool("n", false, "Print the generated source instead of writing it")
	var imports importList
	fs.Var(&imports, "import", "Import name=path for a qualified capability when -nocheck is set (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *typeName == "" {
		fmt.Fprintln(errOut, "usage: capgen -type <Type> -caps <Cap1,Cap2,...> [-output <file>]")
		return 2
	}
	caps, err := capgen.ParseList(*capsFlag)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	var spec capgen.Spec
	if *noCheck {
		if *pkgName == "" {
			fmt.Fprintln(errOut, "capgen: -nocheck requires -package")
			return 2
		}
		spec = capgen.Spec{Package: *pkgName, Type: *typeName, Value: *value, Capabilities: caps, Imports: imports}
	} else {
		if len(imports) > 0 {
			fmt.Fprintln(errOut, "capgen: -import requires -nocheck")
			return 2
		}
		spec, err = capgen.Load(*dir, *typeName, caps, *value)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	spec.Receiver = *receiver

	warnings, err := spec.Normalize()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	for _, w := range warnings {
		fmt.Fprintf(errOut, "capgen: warning: %s\n", w)
	}

	src, err := capgen.Render(spec)
	if errors.Is(err, capgen.ErrMissingImport) {
		fmt.Fprintf(errOut, "%v (name its package with -import name=path)\n", err)
		return 2
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *dryRun {
		_, _ = out.Write(src)
		return 0
	}

	name := *output
	if name == "" {
		name = capgen.DefaultOutput(*typeName)
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(*dir, name)
	}
	if err := os.WriteFile(name, src, 0o644); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", name, err)
		return 1
	}
	return 0
}
