package gen

import "github.com/hysios/protomx/descriptor"

func (u *unit) enum(e *descriptor.Enum) string {
	var (
		p  printer
		ed = "ed_" + e.GoName
	)
	p.Doc(e.Comments, e.Deprecated, e.File.Path)
	p.P("type %s int32", e.GoName)
	p.P("")
	if len(e.Values) > 0 {
		p.P("const (")
		p.Indent(func() {
			for _, v := range e.Values {
				p.Doc(v.Comments, v.Deprecated, e.File.Path)
				p.P("%s %s = %d", v.GoName, e.GoName, v.Number)
			}
		})
		p.P(")")
		p.P("")
	}
	p.P("var %s = schema.Enum(%q)", ed, e.FullName)
	p.P("")
	p.P("func (%s) Descriptor() *%s.Enum { return %s }", e.GoName, u.use(descriptorPkg), ed)
	p.P("")
	p.P("func (x %s) String() string {", e.GoName)
	p.Indent(func() {
		p.P("if v := %s.ByNumber(%s.EnumNumber(x)); v != nil {", ed, u.use(descriptorPkg))
		p.P("\treturn v.Name")
		p.P("}")
		p.P("return %s.Itoa(int(x))", u.use("strconv"))
	})
	p.P("}")
	return p.String()
}
