package capgen

import (
	"fmt"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/packages"
)

// baseMethods are emitted by capgen, so an implementor is not expected to
// have them before generation.
var baseMethods = map[string]bool{
	"Lookup":    true,
	"LookupMut": true,
	"AsBase":    true,
	"AsBaseMut": true,
}

// Load type-checks the package in dir and builds a Spec for typeName.
//
// Every capability must resolve to an interface type whose methods (other than
// the capability.Base methods capgen emits) the implementor already has.
func Load(dir, typeName string, caps []Capability, value bool) (Spec, error) {
	if len(caps) == 0 {
		return Spec{}, ErrNoCapabilities
	}
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedTypes |
			packages.NeedTypesInfo |
			packages.NeedSyntax |
			packages.NeedImports,
		Dir: dir,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return Spec{}, fmt.Errorf("capgen: loading package: %w", err)
	}
	if len(pkgs) != 1 || pkgs[0].Types == nil {
		return Spec{}, fmt.Errorf("capgen: expected one package in %s", dir)
	}
	pkg := pkgs[0]

	// Type errors are expected before the first generation: the implementor
	// does not satisfy capability.Base yet.
	obj := pkg.Types.Scope().Lookup(typeName)
	tn, ok := obj.(*types.TypeName)
	if !ok {
		return Spec{}, fmt.Errorf("capgen: type %s not found in %s", typeName, pkg.PkgPath)
	}
	var recv types.Type = tn.Type()
	if !value {
		recv = types.NewPointer(recv)
	}
	mset := types.NewMethodSet(recv)

	imported := fileImports(pkg)
	spec := Spec{
		Package:      pkg.Name,
		Type:         typeName,
		Value:        value,
		Capabilities: caps,
	}
	used := map[string]bool{}
	for _, c := range caps {
		iface, err := resolve(pkg, imported, c)
		if err != nil {
			return Spec{}, err
		}
		if missing := missingMethod(mset, iface); missing != "" {
			return Spec{}, fmt.Errorf("capgen: %s does not implement %s (missing method %s)", recv, c.Expr(), missing)
		}
		if c.Qualifier != "" && !used[c.Qualifier] {
			used[c.Qualifier] = true
			spec.Imports = append(spec.Imports, Import{Name: c.Qualifier, Path: imported[c.Qualifier].Path()})
		}
	}
	return spec, nil
}

// fileImports maps the local names used in pkg's files to imported packages.
func fileImports(pkg *packages.Package) map[string]*types.Package {
	out := map[string]*types.Package{}
	for _, f := range pkg.Syntax {
		for _, spec := range f.Imports {
			p, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			imp, ok := pkg.Imports[p]
			if !ok || imp.Types == nil {
				continue
			}
			name := imp.Types.Name()
			if spec.Name != nil {
				name = spec.Name.Name
			}
			if name == "_" || name == "." {
				continue
			}
			out[name] = imp.Types
		}
	}
	return out
}

func resolve(pkg *packages.Package, imported map[string]*types.Package, c Capability) (*types.Interface, error) {
	scope := pkg.Types.Scope()
	if c.Qualifier != "" {
		p, ok := imported[c.Qualifier]
		if !ok {
			return nil, fmt.Errorf("capgen: package %s is not imported by %s", c.Qualifier, pkg.PkgPath)
		}
		scope = p.Scope()
	}
	obj, ok := scope.Lookup(c.Name).(*types.TypeName)
	if !ok {
		return nil, fmt.Errorf("capgen: capability %s not found", c.Expr())
	}
	iface, ok := obj.Type().Underlying().(*types.Interface)
	if !ok {
		return nil, fmt.Errorf("capgen: capability %s is not an interface type", c.Expr())
	}
	return iface, nil
}

func missingMethod(mset *types.MethodSet, iface *types.Interface) string {
	for i := 0; i < iface.NumMethods(); i++ {
		m := iface.Method(i)
		if baseMethods[m.Name()] {
			continue
		}
		sel := mset.Lookup(m.Pkg(), m.Name())
		if sel == nil || !types.Identical(sel.Type(), m.Type()) {
			return m.Name()
		}
	}
	return ""
}
