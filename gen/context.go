package gen

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// UnitContext is the data the unit template renders. Declarations are
// rendered before the template runs so that Imports only lists what they
// use.
type UnitContext struct {
	PkgName   string
	Sources   []string
	GoImports []*GoImport
	RawDesc   []byte
	Decls     []string
}

type GoImport struct {
	PkgName string
	Alias   string
}

func (imp *GoImport) String() string {
	if imp.Alias == "" {
		return strconv.Quote(imp.PkgName)
	}
	return imp.Alias + " " + strconv.Quote(imp.PkgName)
}

// Imports renders the import block: standard library first, then the
// rest, each group in path order.
func (ctx *UnitContext) Imports() string {
	var std, other []string
	for _, imp := range ctx.GoImports {
		if strings.Contains(imp.PkgName, ".") {
			other = append(other, "\t"+imp.String())
		} else {
			std = append(std, "\t"+imp.String())
		}
	}
	var groups []string
	for _, g := range [][]string{std, other} {
		if len(g) > 0 {
			sort.Strings(g)
			groups = append(groups, strings.Join(g, "\n"))
		}
	}
	return "import (\n" + strings.Join(groups, "\n\n") + "\n)"
}

// RawDescriptor renders the embedded descriptor set as a byte slice
// literal.
func (ctx *UnitContext) RawDescriptor() string {
	var p printer
	p.P("var rawDesc = []byte{")
	p.Indent(func() {
		for i := 0; i < len(ctx.RawDesc); i += 16 {
			end := i + 16
			if end > len(ctx.RawDesc) {
				end = len(ctx.RawDesc)
			}
			var sb strings.Builder
			for _, c := range ctx.RawDesc[i:end] {
				fmt.Fprintf(&sb, "0x%02x, ", c)
			}
			p.P("%s", strings.TrimSuffix(sb.String(), " "))
		}
	})
	p.P("}")
	return p.String()
}

// printer writes indented lines. Callers nest with Indent.
type printer struct {
	buf    bytes.Buffer
	indent int
}

func (p *printer) P(format string, a ...any) {
	line := fmt.Sprintf(format, a...)
	if line != "" {
		p.buf.WriteString(strings.Repeat("\t", p.indent))
		p.buf.WriteString(line)
	}
	p.buf.WriteByte('\n')
}

func (p *printer) Indent(fn func()) {
	p.indent++
	fn()
	p.indent--
}

// Comment writes text as a line comment block.
func (p *printer) Comment(text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			p.P("//")
			continue
		}
		p.P("// %s", strings.TrimPrefix(line, " "))
	}
}

// Doc writes a declaration's leading comment and its deprecation notice.
func (p *printer) Doc(comments string, deprecated bool, file string) {
	p.Comment(comments)
	if deprecated {
		if comments != "" {
			p.P("//")
		}
		p.P("// Deprecated: Marked as deprecated in %s.", file)
	}
}

func (p *printer) String() string { return p.buf.String() }
