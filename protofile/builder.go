package protofile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yoheimuta/go-protoparser/v4/parser"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

var scalarTypes = map[string]descriptorpb.FieldDescriptorProto_Type{
	"double":   descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
	"float":    descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
	"int64":    descriptorpb.FieldDescriptorProto_TYPE_INT64,
	"uint64":   descriptorpb.FieldDescriptorProto_TYPE_UINT64,
	"int32":    descriptorpb.FieldDescriptorProto_TYPE_INT32,
	"fixed64":  descriptorpb.FieldDescriptorProto_TYPE_FIXED64,
	"fixed32":  descriptorpb.FieldDescriptorProto_TYPE_FIXED32,
	"bool":     descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	"string":   descriptorpb.FieldDescriptorProto_TYPE_STRING,
	"bytes":    descriptorpb.FieldDescriptorProto_TYPE_BYTES,
	"uint32":   descriptorpb.FieldDescriptorProto_TYPE_UINT32,
	"sfixed32": descriptorpb.FieldDescriptorProto_TYPE_SFIXED32,
	"sfixed64": descriptorpb.FieldDescriptorProto_TYPE_SFIXED64,
	"sint32":   descriptorpb.FieldDescriptorProto_TYPE_SINT32,
	"sint64":   descriptorpb.FieldDescriptorProto_TYPE_SINT64,
}

// maxFieldNumber is the exclusive end of "reserved N to max".
const maxFieldNumber = 1<<29 - 1

// builder turns a parsed .proto body into a FileDescriptorProto. Type
// references are left as written; the descriptor loader resolves them.
type builder struct {
	fd   *descriptorpb.FileDescriptorProto
	locs []*descriptorpb.SourceCodeInfo_Location
	err  error
}

func (b *builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("protofile: %s: %s", b.fd.GetName(), fmt.Sprintf(format, args...))
	}
}

func (b *builder) comment(path []int32, comments []*parser.Comment) {
	text := commentText(comments)
	if text == "" {
		return
	}
	b.locs = append(b.locs, &descriptorpb.SourceCodeInfo_Location{
		Path:            append([]int32(nil), path...),
		LeadingComments: proto.String(text),
	})
}

func (b *builder) file(p *parser.Proto) {
	syntax := "proto2"
	if p.Syntax != nil && p.Syntax.Version() == 3 {
		syntax = "proto3"
	}
	b.fd.Syntax = proto.String(syntax)

	for _, v := range p.ProtoBody {
		switch v := v.(type) {
		case *parser.Package:
			b.fd.Package = proto.String(v.Name)
		case *parser.Import:
			idx := int32(len(b.fd.Dependency))
			b.fd.Dependency = append(b.fd.Dependency, unquote(v.Location))
			switch v.Modifier {
			case parser.ImportModifierPublic:
				b.fd.PublicDependency = append(b.fd.PublicDependency, idx)
			case parser.ImportModifierWeak:
				b.fd.WeakDependency = append(b.fd.WeakDependency, idx)
			}
		case *parser.Option:
			b.fileOption(v)
		case *parser.Message:
			path := []int32{4, int32(len(b.fd.MessageType))}
			b.fd.MessageType = append(b.fd.MessageType, b.message(v, path))
		case *parser.Enum:
			path := []int32{5, int32(len(b.fd.EnumType))}
			b.fd.EnumType = append(b.fd.EnumType, b.enum(v, path))
		case *parser.Service:
			path := []int32{6, int32(len(b.fd.Service))}
			b.fd.Service = append(b.fd.Service, b.service(v, path))
		}
	}

	if len(b.locs) > 0 {
		b.fd.SourceCodeInfo = &descriptorpb.SourceCodeInfo{Location: b.locs}
	}
}

func (b *builder) fileOption(opt *parser.Option) {
	if b.fd.Options == nil {
		b.fd.Options = &descriptorpb.FileOptions{}
	}
	switch opt.OptionName {
	case "go_package":
		b.fd.Options.GoPackage = proto.String(unquote(opt.Constant))
	case "deprecated":
		b.fd.Options.Deprecated = proto.Bool(opt.Constant == "true")
	}
}

func (b *builder) message(m *parser.Message, path []int32) *descriptorpb.DescriptorProto {
	b.comment(path, m.Comments)
	md := &descriptorpb.DescriptorProto{Name: proto.String(m.MessageName)}
	var synthetic []*descriptorpb.FieldDescriptorProto

	for _, v := range m.MessageBody {
		switch v := v.(type) {
		case *parser.Field:
			fpath := sub(path, 2, int32(len(md.Field)))
			b.comment(fpath, v.Comments)
			f := b.field(v.FieldName, v.Type, v.FieldNumber, fieldOptions(v.FieldOptions))
			switch {
			case v.IsRepeated:
				f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
			case v.IsRequired:
				f.Label = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED.Enum()
			case v.IsOptional && b.fd.GetSyntax() == "proto3":
				f.Proto3Optional = proto.Bool(true)
				synthetic = append(synthetic, f)
			}
			md.Field = append(md.Field, f)

		case *parser.MapField:
			b.comment(sub(path, 2, int32(len(md.Field))), v.Comments)
			entry := mapEntryName(v.MapName)
			f := b.field(v.MapName, entry, v.FieldNumber, fieldOptions(v.FieldOptions))
			f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
			f.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
			md.Field = append(md.Field, f)

			key := b.field("key", v.KeyType, "1", nil)
			val := b.field("value", v.Type, "2", nil)
			md.NestedType = append(md.NestedType, &descriptorpb.DescriptorProto{
				Name:    proto.String(entry),
				Field:   []*descriptorpb.FieldDescriptorProto{key, val},
				Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
			})

		case *parser.Oneof:
			idx := int32(len(md.OneofDecl))
			b.comment(sub(path, 8, idx), v.Comments)
			md.OneofDecl = append(md.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(v.OneofName)})
			for _, of := range v.OneofFields {
				b.comment(sub(path, 2, int32(len(md.Field))), of.Comments)
				f := b.field(of.FieldName, of.Type, of.FieldNumber, fieldOptions(of.FieldOptions))
				f.OneofIndex = proto.Int32(idx)
				md.Field = append(md.Field, f)
			}

		case *parser.Message:
			md.NestedType = append(md.NestedType, b.message(v, sub(path, 3, int32(len(md.NestedType)))))

		case *parser.Enum:
			md.EnumType = append(md.EnumType, b.enum(v, sub(path, 4, int32(len(md.EnumType)))))

		case *parser.Option:
			if md.Options == nil {
				md.Options = &descriptorpb.MessageOptions{}
			}
			if v.OptionName == "deprecated" {
				md.Options.Deprecated = proto.Bool(v.Constant == "true")
			}

		case *parser.Reserved:
			for _, r := range v.Ranges {
				start, end := b.number(r.Begin), b.number(r.Begin)
				switch r.End {
				case "":
				case "max":
					end = maxFieldNumber
				default:
					end = b.number(r.End)
				}
				md.ReservedRange = append(md.ReservedRange, &descriptorpb.DescriptorProto_ReservedRange{
					Start: proto.Int32(start),
					End:   proto.Int32(end + 1),
				})
			}
			for _, name := range v.FieldNames {
				md.ReservedName = append(md.ReservedName, unquote(name))
			}
		}
	}

	// synthetic oneofs follow every declared one
	for _, f := range synthetic {
		f.OneofIndex = proto.Int32(int32(len(md.OneofDecl)))
		md.OneofDecl = append(md.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + f.GetName())})
	}
	return md
}

func (b *builder) field(name, typ, number string, opts map[string]string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(b.number(number)),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
	if t, ok := scalarTypes[typ]; ok {
		f.Type = t.Enum()
	} else {
		f.TypeName = proto.String(typ)
	}

	for k, v := range opts {
		switch k {
		case "json_name":
			f.JsonName = proto.String(unquote(v))
		case "deprecated":
			f.Options = fieldOpts(f)
			f.Options.Deprecated = proto.Bool(v == "true")
		case "packed":
			f.Options = fieldOpts(f)
			f.Options.Packed = proto.Bool(v == "true")
		}
	}
	return f
}

func fieldOpts(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldOptions {
	if f.Options == nil {
		return &descriptorpb.FieldOptions{}
	}
	return f.Options
}

func (b *builder) enum(e *parser.Enum, path []int32) *descriptorpb.EnumDescriptorProto {
	b.comment(path, e.Comments)
	ed := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.EnumName)}
	for _, v := range e.EnumBody {
		switch v := v.(type) {
		case *parser.EnumField:
			b.comment(sub(path, 2, int32(len(ed.Value))), v.Comments)
			vd := &descriptorpb.EnumValueDescriptorProto{
				Name:   proto.String(v.Ident),
				Number: proto.Int32(b.number(v.Number)),
			}
			for _, opt := range v.EnumValueOptions {
				if opt.OptionName == "deprecated" {
					vd.Options = &descriptorpb.EnumValueOptions{Deprecated: proto.Bool(opt.Constant == "true")}
				}
			}
			ed.Value = append(ed.Value, vd)
		case *parser.Option:
			if ed.Options == nil {
				ed.Options = &descriptorpb.EnumOptions{}
			}
			switch v.OptionName {
			case "allow_alias":
				ed.Options.AllowAlias = proto.Bool(v.Constant == "true")
			case "deprecated":
				ed.Options.Deprecated = proto.Bool(v.Constant == "true")
			}
		}
	}
	return ed
}

func (b *builder) service(s *parser.Service, path []int32) *descriptorpb.ServiceDescriptorProto {
	b.comment(path, s.Comments)
	sd := &descriptorpb.ServiceDescriptorProto{Name: proto.String(s.ServiceName)}
	for _, v := range s.ServiceBody {
		switch v := v.(type) {
		case *parser.RPC:
			b.comment(sub(path, 2, int32(len(sd.Method))), v.Comments)
			md := &descriptorpb.MethodDescriptorProto{
				Name:       proto.String(v.RPCName),
				InputType:  proto.String(v.RPCRequest.MessageType),
				OutputType: proto.String(v.RPCResponse.MessageType),
			}
			if v.RPCRequest.IsStream {
				md.ClientStreaming = proto.Bool(true)
			}
			if v.RPCResponse.IsStream {
				md.ServerStreaming = proto.Bool(true)
			}
			for _, opt := range v.Options {
				if opt.OptionName == "deprecated" {
					md.Options = &descriptorpb.MethodOptions{Deprecated: proto.Bool(opt.Constant == "true")}
				}
			}
			sd.Method = append(sd.Method, md)
		case *parser.Option:
			if v.OptionName == "deprecated" {
				sd.Options = &descriptorpb.ServiceOptions{Deprecated: proto.Bool(v.Constant == "true")}
			}
		}
	}
	return sd
}

func (b *builder) number(s string) int32 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		b.fail("invalid number %q", s)
	}
	return int32(n)
}

func fieldOptions(opts []*parser.FieldOption) map[string]string {
	out := make(map[string]string, len(opts))
	for _, opt := range opts {
		out[opt.OptionName] = opt.Constant
	}
	return out
}

// mapEntryName follows protoc: "my_map" becomes "MyMapEntry".
func mapEntryName(field string) string {
	var sb strings.Builder
	upper := true
	for _, r := range field {
		if r == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= r && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		sb.WriteRune(r)
	}
	sb.WriteString("Entry")
	return sb.String()
}

func commentText(comments []*parser.Comment) string {
	var lines []string
	for _, c := range comments {
		raw := strings.TrimSpace(c.Raw)
		switch {
		case strings.HasPrefix(raw, "//"):
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(raw, "//")))
		case strings.HasPrefix(raw, "/*"):
			raw = strings.TrimSuffix(strings.TrimPrefix(raw, "/*"), "*/")
			for _, l := range strings.Split(raw, "\n") {
				l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "*"))
				if l != "" {
					lines = append(lines, l)
				}
			}
		}
	}
	return strings.Join(lines, "\n")
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func sub(path []int32, elems ...int32) []int32 {
	out := make([]int32, 0, len(path)+len(elems))
	return append(append(out, path...), elems...)
}
