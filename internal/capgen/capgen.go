// Package capgen emits capability registries as Go source.
//
// For an implementor type and an ordered capability list it writes the four
// capability.Base methods. Lookup and LookupMut are a switch of token
// equality tests in the order the capabilities were listed.
package capgen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"path"
	"strings"
	"text/template"
)

// DefaultCapabilityPath is the import path of the capability runtime.
const DefaultCapabilityPath = "xdao.co/sidecast/capability"

var (
	ErrNoCapabilities = errors.New("capgen: at least one capability is required")
	ErrNoType         = errors.New("capgen: implementor type is required")
	ErrMissingImport  = errors.New("capgen: qualified capability has no import")
)

// Capability is one entry of the advertised list, as written by the user.
type Capability struct {
	// Qualifier is the package name before the dot ("storage" in
	// "storage.Lister"), or "" for a capability declared in the same package.
	Qualifier string
	Name      string
}

// Expr returns the capability as it appears in Go source.
func (c Capability) Expr() string {
	if c.Qualifier == "" {
		return c.Name
	}
	return c.Qualifier + "." + c.Name
}

// Import is one import required by the generated file.
type Import struct {
	Name string
	Path string
}

// Spec describes one generated registry.
type Spec struct {
	Package      string
	Type         string
	Value        bool // value receiver instead of pointer receiver
	Receiver     string
	Capabilities []Capability
	Imports      []Import

	// CapabilityPath overrides DefaultCapabilityPath.
	CapabilityPath string
}

// ParseList parses a comma-separated capability list such as
// "storage.CAS, storage.Lister,Sizer".
func ParseList(s string) ([]Capability, error) {
	var out []Capability
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var c Capability
		if q, n, ok := strings.Cut(raw, "."); ok {
			c = Capability{Qualifier: q, Name: n}
		} else {
			c = Capability{Name: raw}
		}
		if (c.Qualifier != "" && !token.IsIdentifier(c.Qualifier)) || !token.IsIdentifier(c.Name) {
			return nil, fmt.Errorf("capgen: invalid capability %q", raw)
		}
		if !token.IsExported(c.Name) && c.Qualifier != "" {
			return nil, fmt.Errorf("capgen: capability %q is not exported", raw)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrNoCapabilities
	}
	return out, nil
}

// Normalize validates s and removes duplicate capabilities, keeping the
// first occurrence. It returns one warning per dropped duplicate.
func (s *Spec) Normalize() ([]string, error) {
	if s.Type == "" || !token.IsIdentifier(s.Type) {
		return nil, ErrNoType
	}
	if s.Package == "" {
		return nil, errors.New("capgen: package name is required")
	}
	if len(s.Capabilities) == 0 {
		return nil, ErrNoCapabilities
	}
	if s.Receiver == "" {
		s.Receiver = "x"
	}
	if s.Receiver == "t" || !token.IsIdentifier(s.Receiver) {
		return nil, fmt.Errorf("capgen: invalid receiver name %q", s.Receiver)
	}
	if s.CapabilityPath == "" {
		s.CapabilityPath = DefaultCapabilityPath
	}

	var warnings []string
	seen := make(map[string]struct{}, len(s.Capabilities))
	uniq := s.Capabilities[:0:0]
	for _, c := range s.Capabilities {
		key := c.Expr()
		if _, dup := seen[key]; dup {
			warnings = append(warnings, fmt.Sprintf("%s: capability %s listed more than once; only the first is reachable", s.Type, key))
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, c)
	}
	s.Capabilities = uniq
	return warnings, nil
}

// Render returns the gofmt'ed source of the generated file.
func Render(s Spec) ([]byte, error) {
	if _, err := s.Normalize(); err != nil {
		return nil, err
	}
	recvType := "*" + s.Type
	if s.Value {
		recvType = s.Type
	}
	imports, err := s.fileImports()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = fileTemplate.Execute(&buf, struct {
		Spec
		RecvType string
		Imports  []Import
	}{Spec: s, RecvType: recvType, Imports: imports})
	if err != nil {
		return nil, fmt.Errorf("capgen: render: %w", err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("capgen: format: %w", err)
	}
	return out, nil
}

// fileImports returns the import block of the generated file: the capability
// runtime plus one entry per qualifier the capabilities use. Imports no
// capability refers to are dropped so the file compiles.
func (s Spec) fileImports() ([]Import, error) {
	byName := map[string]Import{}
	for _, imp := range s.Imports {
		name := imp.Name
		if name == "" {
			name = path.Base(imp.Path)
		}
		if _, ok := byName[name]; !ok {
			byName[name] = imp
		}
	}

	imports := []Import{{Path: s.CapabilityPath}}
	done := map[string]bool{path.Base(s.CapabilityPath): true}
	for _, c := range s.Capabilities {
		if c.Qualifier == "" || done[c.Qualifier] {
			continue
		}
		imp, ok := byName[c.Qualifier]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingImport, c.Expr())
		}
		done[c.Qualifier] = true
		if imp.Path == s.CapabilityPath {
			continue
		}
		imp.Name = c.Qualifier
		if imp.Name == path.Base(imp.Path) {
			imp.Name = ""
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

// DefaultOutput returns the conventional output file name for typeName.
func DefaultOutput(typeName string) string {
	return strings.ToLower(typeName) + "_capabilities.go"
}

var fileTemplate = template.Must(template.New("capgen").Parse(`// Code generated by capgen; DO NOT EDIT.

package {{.Package}}

import (
{{- range .Imports}}
	{{if .Name}}{{.Name}} {{end}}"{{.Path}}"
{{- end}}
)

// Lookup implements capability.Base.
func ({{.Receiver}} {{.RecvType}}) Lookup(t capability.Token) (capability.Carrier, bool) {
	switch t {
{{- range .Capabilities}}
	case capability.TokenOf[{{.Expr}}]():
		return capability.Conceal[{{.Expr}}]({{$.Receiver}}), true
{{- end}}
	}
	return capability.Carrier{}, false
}

// LookupMut implements capability.Base.
func ({{.Receiver}} {{.RecvType}}) LookupMut(t capability.Token) (capability.MutCarrier, bool) {
	switch t {
{{- range .Capabilities}}
	case capability.TokenOf[{{.Expr}}]():
		return capability.ConcealMut[{{.Expr}}]({{$.Receiver}}), true
{{- end}}
	}
	return capability.MutCarrier{}, false
}

// AsBase implements capability.Base.
func ({{.Receiver}} {{.RecvType}}) AsBase() capability.Ref { return capability.Shared({{.Receiver}}) }

// AsBaseMut implements capability.Base.
func ({{.Receiver}} {{.RecvType}}) AsBaseMut() capability.MutRef { return capability.Exclusive({{.Receiver}}) }
`))
