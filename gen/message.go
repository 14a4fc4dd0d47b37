package gen

import (
	"fmt"
	"strconv"

	"github.com/hysios/protomx/descriptor"
)

func descVar(m *descriptor.Message) string { return "md_" + m.GoName }

func oneofIface(o *descriptor.Oneof) string {
	return "is" + o.Parent.GoName + "_" + o.GoName
}

func (u *unit) fields(m *descriptor.Message) []*descriptor.Field {
	var out []*descriptor.Field
	for _, f := range m.Fields {
		if !skipField(f) {
			out = append(out, f)
		}
	}
	return out
}

func fieldExpr(f *descriptor.Field) string {
	return "fields[" + strconv.Itoa(f.Index) + "]"
}

func (u *unit) message(m *descriptor.Message) string {
	var (
		p      printer
		fields = u.fields(m)
		md     = descVar(m)
	)

	p.Doc(m.Comments, m.Deprecated, m.File.Path)
	p.P("type %s struct {", m.GoName)
	p.Indent(func() {
		for _, f := range fields {
			if o := f.RealOneof(); o != nil {
				if o.Fields[0] == f {
					p.P("// Types that are assignable to %s:", o.GoName)
					for _, of := range o.Fields {
						p.P("//\t*%s", of.WrapperName)
					}
					p.P("%s %s", o.GoName, oneofIface(o))
				}
				continue
			}
			p.Doc(f.Comments, f.Deprecated, m.File.Path)
			p.P("%s %s", f.GoName, u.fieldType(f))
		}
		if len(fields) > 0 {
			p.P("")
		}
		p.P("unknownFields []byte")
	})
	p.P("}")
	p.P("")
	p.P("var %s = %s.MustMessage(schema, %q)", md, u.use(protomxPkg), m.FullName)
	p.P("")

	u.methods(&p, m)
	u.toDynamic(&p, m, fields)
	u.fromDynamic(&p, m, fields)
	if u.g.opts.ValidatedVariant {
		u.validate(&p, m, fields)
	}
	for _, o := range m.RealOneofs() {
		u.oneof(&p, o)
	}
	return p.String()
}

func (u *unit) methods(p *printer, m *descriptor.Message) {
	var (
		name = m.GoName
		pm   = u.use(protomxPkg)
	)
	p.P("func (x *%s) Descriptor() *%s.Message { return %s }", name, u.use(descriptorPkg), descVar(m))
	p.P("")
	p.P("func (x *%s) Reset() { *x = %s{} }", name, name)
	p.P("")
	p.P("func (x *%s) String() string {", name)
	p.P("\tb, _ := x.MarshalJSON()")
	p.P("\treturn string(b)")
	p.P("}")
	p.P("")
	p.P("func (x *%s) Marshal() ([]byte, error) { return %s.Marshal(x) }", name, pm)
	p.P("")
	p.P("func (x *%s) Unmarshal(b []byte) error { return %s.Unmarshal(b, x) }", name, pm)
	p.P("")
	p.P("func (x *%s) MarshalJSON() ([]byte, error) {", name)
	p.P("\treturn %s.MarshalJSON(x, %s.WithResolver(schema))", pm, pm)
	p.P("}")
	p.P("")
	p.P("func (x *%s) UnmarshalJSON(b []byte) error {", name)
	p.P("\treturn %s.UnmarshalJSON(b, x, %s.WithResolver(schema))", pm, pm)
	p.P("}")
	p.P("")
}

func (u *unit) toDynamic(p *printer, m *descriptor.Message, fields []*descriptor.Field) {
	dyn := u.use(dynamicPkg)
	p.P("func (x *%s) ToDynamic() *%s.Message {", m.GoName, dyn)
	p.Indent(func() {
		p.P("m := %s.New(%s)", dyn, descVar(m))
		p.P("if x == nil {")
		p.P("\treturn m")
		p.P("}")
		if len(fields) > 0 {
			p.P("fields := %s.Fields", descVar(m))
		}
		for _, f := range fields {
			if o := f.RealOneof(); o != nil {
				if o.Fields[0] == f {
					u.oneofToDynamic(p, o)
				}
				continue
			}
			u.fieldToDynamic(p, f)
		}
		p.P("m.SetUnknown(x.unknownFields)")
		p.P("return m")
	})
	p.P("}")
	p.P("")
}

func (u *unit) fieldToDynamic(p *printer, f *descriptor.Field) {
	var (
		dyn = u.use(dynamicPkg)
		fe  = fieldExpr(f)
		x   = "x." + f.GoName
	)
	c, _ := u.classify(f)

	switch {
	case f.IsMap():
		kf, vf := f.MapKey(), f.MapValue()
		sorted := "SortedKeys"
		if kf.Kind == descriptor.BoolKind {
			sorted = "SortedBoolKeys"
		}
		vc, _ := u.classify(vf)
		p.P("if len(%s) > 0 {", x)
		p.Indent(func() {
			p.P("mp := %s.NewMap(%s)", dyn, fe)
			p.P("for _, k := range %s.%s(%s) {", u.use(protomxPkg), sorted, x)
			p.Indent(func() {
				p.P("v := %s[k]", x)
				if vc == dynamicClass {
					p.P("if v == nil {")
					p.P("\tv = %s.New(%s.MapValue().Message)", dyn, fe)
					p.P("}")
				}
				p.P("mp.Set(%s, %s)", u.toValue(kf, fe+".MapKey()", "k"), u.toValue(vf, fe+".MapValue()", "v"))
			})
			p.P("}")
			p.P("m.Set(%s, %s.ValueOfMap(mp))", fe, dyn)
		})
		p.P("}")

	case f.IsList():
		p.P("if len(%s) > 0 {", x)
		p.Indent(func() {
			p.P("l := %s.NewList(%s)", dyn, fe)
			p.P("for _, v := range %s {", x)
			p.Indent(func() {
				if c == dynamicClass {
					p.P("if v == nil {")
					p.P("\tv = %s.New(%s.Message)", dyn, fe)
					p.P("}")
				}
				p.P("l.Append(%s)", u.toValue(f, fe, "v"))
			})
			p.P("}")
			p.P("m.Set(%s, %s.ValueOfList(l))", fe, dyn)
		})
		p.P("}")

	case c == messageClass || c == dynamicClass || f.Kind == descriptor.BytesKind && f.HasPresence():
		p.P("if %s != nil {", x)
		p.P("\tm.Set(%s, %s)", fe, u.toValue(f, fe, x))
		p.P("}")

	case c == nativeClass || u.pointerScalar(f):
		p.P("if %s != nil {", x)
		p.P("\tm.Set(%s, %s)", fe, u.toValue(f, fe, "*"+x))
		p.P("}")

	default:
		p.P("m.Set(%s, %s)", fe, u.toValue(f, fe, x))
	}
}

func (u *unit) oneofToDynamic(p *printer, o *descriptor.Oneof) {
	dyn := u.use(dynamicPkg)
	p.P("switch v := x.%s.(type) {", o.GoName)
	for _, f := range o.Fields {
		if skipField(f) {
			continue
		}
		fe := fieldExpr(f)
		p.P("case *%s:", f.WrapperName)
		p.Indent(func() {
			if c, _ := u.classify(f); c == dynamicClass {
				p.P("if v.%s == nil {", f.GoName)
				p.P("\tm.Set(%s, %s.ValueOfMessage(%s.New(%s.Message)))", fe, dyn, dyn, fe)
				p.P("} else {")
				p.P("\tm.Set(%s, %s)", fe, u.toValue(f, fe, "v."+f.GoName))
				p.P("}")
				return
			}
			p.P("m.Set(%s, %s)", fe, u.toValue(f, fe, "v."+f.GoName))
		})
	}
	p.P("}")
}

func (u *unit) fromDynamic(p *printer, m *descriptor.Message, fields []*descriptor.Field) {
	p.P("func (x *%s) FromDynamic(m *%s.Message) error {", m.GoName, u.use(dynamicPkg))
	p.Indent(func() {
		p.P("if err := %s.CheckType(%s, m); err != nil {", u.use(protomxPkg), descVar(m))
		p.P("\treturn err")
		p.P("}")
		// Oneof members are read through WhichOneof and never index fields.
		for _, f := range fields {
			if f.RealOneof() == nil {
				p.P("fields := %s.Fields", descVar(m))
				break
			}
		}
		p.P("var out %s", m.GoName)
		for _, f := range fields {
			if o := f.RealOneof(); o != nil {
				if o.Fields[0] == f {
					u.oneofFromDynamic(p, o)
				}
				continue
			}
			u.fieldFromDynamic(p, f)
		}
		p.P("out.unknownFields = m.Unknown()")
		p.P("*x = out")
		p.P("return nil")
	})
	p.P("}")
	p.P("")
}

// assign writes the statements storing the converted value v of f into
// dst. onErr runs when a nested message fails to convert.
func (u *unit) assign(p *printer, f *descriptor.Field, v, dst string, onErr ...string) {
	if c, _ := u.classify(f); c == messageClass {
		p.P("e, err := %s", u.convert(f, v+".Message()"))
		p.P("if err != nil {")
		p.Indent(func() {
			if len(onErr) == 0 {
				p.P("return err")
			}
			for _, line := range onErr {
				p.P("%s", line)
			}
		})
		p.P("}")
		p.P("%s", fmt.Sprintf(dst, "e"))
		return
	}
	p.P("%s", fmt.Sprintf(dst, u.fromValue(f, v)))
}

func (u *unit) fieldFromDynamic(p *printer, f *descriptor.Field) {
	var (
		fe  = fieldExpr(f)
		out = "out." + f.GoName
	)
	c, _ := u.classify(f)

	switch {
	case f.IsMap():
		kf, vf := f.MapKey(), f.MapValue()
		p.P("if mp := m.Get(%s).Map(); mp.Len() > 0 {", fe)
		p.Indent(func() {
			p.P("%s = make(%s, mp.Len())", out, u.fieldType(f))
			key := u.fromValue(kf, "k")
			if vc, _ := u.classify(vf); vc == messageClass {
				p.P("var rerr error")
				p.P("mp.Range(func(k, v %s.Value) bool {", u.use(dynamicPkg))
				p.Indent(func() {
					u.assign(p, vf, "v", out+"["+key+"] = %s", "rerr = err", "return false")
					p.P("return true")
				})
				p.P("})")
				p.P("if rerr != nil {")
				p.P("\treturn rerr")
				p.P("}")
				return
			}
			p.P("mp.Range(func(k, v %s.Value) bool {", u.use(dynamicPkg))
			p.Indent(func() {
				u.assign(p, vf, "v", out+"["+key+"] = %s")
				p.P("return true")
			})
			p.P("})")
		})
		p.P("}")

	case f.IsList():
		p.P("if l := m.Get(%s).List(); l.Len() > 0 {", fe)
		p.Indent(func() {
			p.P("%s = make(%s, 0, l.Len())", out, u.fieldType(f))
			p.P("for i := 0; i < l.Len(); i++ {")
			p.Indent(func() {
				u.assign(p, f, "l.Get(i)", out+" = append("+out+", %s)")
			})
			p.P("}")
		})
		p.P("}")

	case c == messageClass || c == dynamicClass:
		p.P("if m.Has(%s) {", fe)
		p.Indent(func() {
			u.assign(p, f, "m.Get("+fe+")", out+" = %s")
		})
		p.P("}")

	case f.Kind == descriptor.BytesKind && f.HasPresence():
		p.P("if m.Has(%s) {", fe)
		p.P("\t%s = append([]byte{}, m.Get(%s).Bytes()...)", out, fe)
		p.P("}")

	case c == nativeClass || u.pointerScalar(f):
		p.P("if m.Has(%s) {", fe)
		p.Indent(func() {
			p.P("v := %s", u.fromValue(f, "m.Get("+fe+")"))
			p.P("%s = &v", out)
		})
		p.P("}")

	default:
		p.P("%s = %s", out, u.fromValue(f, "m.Get("+fe+")"))
	}
}

func (u *unit) oneofFromDynamic(p *printer, o *descriptor.Oneof) {
	p.P("if f, v := m.WhichOneof(%s.Oneofs[%d]); f != nil {", descVar(o.Parent), o.Index)
	p.Indent(func() {
		p.P("switch f.Number {")
		for _, f := range o.Fields {
			if skipField(f) {
				continue
			}
			p.P("case %d:", f.Number)
			p.Indent(func() {
				u.assign(p, f, "v", "out."+o.GoName+" = &"+f.WrapperName+"{"+f.GoName+": %s}")
			})
		}
		p.P("}")
	})
	p.P("}")
}

func (u *unit) oneof(p *printer, o *descriptor.Oneof) {
	iface := oneofIface(o)
	p.P("type %s interface {", iface)
	p.P("\t%s()", iface)
	p.P("}")
	p.P("")
	for _, f := range o.Fields {
		if skipField(f) {
			continue
		}
		p.Doc(f.Comments, f.Deprecated, o.Parent.File.Path)
		p.P("type %s struct {", f.WrapperName)
		p.P("\t%s %s", f.GoName, u.elemType(f))
		p.P("}")
		p.P("")
		p.P("func (*%s) %s() {}", f.WrapperName, iface)
		p.P("")
	}
}

// validates reports whether f holds anything Validate checks.
func (u *unit) validates(f *descriptor.Field) bool {
	switch c, _ := u.classify(f); c {
	case messageClass:
		return true
	case enumClass:
		return u.isGeneratedEnum(f.Enum)
	}
	return f.Kind == descriptor.StringKind
}

// check renders the Violations call for one value x of f at path.
func (u *unit) check(f *descriptor.Field, path, x string) string {
	switch c, _ := u.classify(f); c {
	case messageClass:
		return fmt.Sprintf("vs.Message(%s, %s)", path, x)
	case enumClass:
		return fmt.Sprintf("vs.Enum(%s, %s.Descriptor(), int32(%s))", path, x, x)
	}
	return fmt.Sprintf("vs.String(%s, %s)", path, x)
}

func (u *unit) validate(p *printer, m *descriptor.Message, fields []*descriptor.Field) {
	pm := u.use(protomxPkg)
	p.P("// Validate checks string encoding, enum ranges and nested messages.")
	p.P("func (x *%s) Validate() error {", m.GoName)
	p.Indent(func() {
		p.P("if x == nil {")
		p.P("\treturn nil")
		p.P("}")
		p.P("var vs %s.Violations", pm)
		for _, f := range fields {
			if o := f.RealOneof(); o != nil {
				if o.Fields[0] == f {
					u.validateOneof(p, o)
				}
				continue
			}
			u.validateField(p, f)
		}
		p.P("return vs.Err()")
	})
	p.P("}")
	p.P("")
}

func (u *unit) validateField(p *printer, f *descriptor.Field) {
	var (
		pm   = u.use(protomxPkg)
		path = strconv.Quote(f.Name)
		x    = "x." + f.GoName
	)
	switch {
	case f.IsMap():
		kf, vf := f.MapKey(), f.MapValue()
		checkKey := kf.Kind == descriptor.StringKind
		checkVal := u.validates(vf)
		if !checkKey && !checkVal {
			return
		}
		sorted := "SortedKeys"
		if kf.Kind == descriptor.BoolKind {
			sorted = "SortedBoolKeys"
		}
		p.P("for _, k := range %s.%s(%s) {", pm, sorted, x)
		p.Indent(func() {
			if checkKey {
				p.P("%s", u.check(kf, path, "k"))
			}
			if checkVal {
				p.P("%s", u.check(vf, fmt.Sprintf("%s.Key(%s, k)", pm, path), x+"[k]"))
			}
		})
		p.P("}")

	case !u.validates(f):

	case f.IsList():
		p.P("for i, e := range %s {", x)
		p.P("\t%s", u.check(f, fmt.Sprintf("%s.Index(%s, i)", pm, path), "e"))
		p.P("}")

	case u.pointerScalar(f):
		p.P("if %s != nil {", x)
		p.P("\t%s", u.check(f, path, "(*"+x+")"))
		p.P("}")

	default:
		p.P("%s", u.check(f, path, x))
	}
}

func (u *unit) validateOneof(p *printer, o *descriptor.Oneof) {
	var checked []*descriptor.Field
	for _, f := range o.Fields {
		if !skipField(f) && u.validates(f) {
			checked = append(checked, f)
		}
	}
	if len(checked) == 0 {
		return
	}
	p.P("switch o := x.%s.(type) {", o.GoName)
	for _, f := range checked {
		p.P("case *%s:", f.WrapperName)
		p.P("\t%s", u.check(f, strconv.Quote(f.Name), "o."+f.GoName))
	}
	p.P("}")
}
