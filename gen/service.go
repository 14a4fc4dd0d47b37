package gen

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hysios/protomx/descriptor"
)

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

func (u *unit) service(s *descriptor.Service) string {
	var (
		p      printer
		ctx    = u.use("context")
		rpc    = u.use(rpcPkg)
		client = s.GoName + "Client"
		server = s.GoName + "Server"
		impl   = lowerFirst(client)
	)
	if impl == client {
		impl = "x" + client
	}

	// client
	p.Doc(s.Comments, s.Deprecated, s.File.Path)
	p.P("type %s interface {", client)
	p.Indent(func() {
		for _, m := range s.Methods {
			p.Doc(m.Comments, m.Deprecated, s.File.Path)
			p.P("%s%s", m.GoName, u.clientSignature(m, ctx, rpc))
		}
	})
	p.P("}")
	p.P("")
	p.P("type %s struct {", impl)
	p.P("\tconn %s.Conn", rpc)
	p.P("}")
	p.P("")
	p.P("func New%s(conn %s.Conn) %s {", client, rpc, client)
	p.P("\treturn &%s{conn: conn}", impl)
	p.P("}")
	p.P("")
	for _, m := range s.Methods {
		var (
			in   = u.messageType(m.Input)
			out  = u.messageType(m.Output)
			path = fmt.Sprintf("%q", m.Path())
		)
		p.P("func (c *%s) %s%s {", impl, m.GoName, u.clientSignature(m, ctx, rpc))
		switch m.Cardinality() {
		case descriptor.UnaryUnary:
			p.P("\treturn %s.CallUnary[%s](ctx, c.conn, %s, in)", rpc, out, path)
		case descriptor.UnaryStream:
			p.P("\treturn %s.CallUnaryStream[%s](ctx, c.conn, %s, in)", rpc, out, path)
		case descriptor.StreamUnary:
			p.P("\treturn %s.CallStreamUnary[*%s, %s](ctx, c.conn, %s, in)", rpc, in, out, path)
		case descriptor.StreamStream:
			p.P("\treturn %s.CallStreamStream[*%s, %s](ctx, c.conn, %s, in)", rpc, in, out, path)
		}
		p.P("}")
		p.P("")
	}

	// server
	p.Doc(s.Comments, s.Deprecated, s.File.Path)
	p.P("type %s interface {", server)
	p.Indent(func() {
		for _, m := range s.Methods {
			p.Doc(m.Comments, m.Deprecated, s.File.Path)
			p.P("%s%s", m.GoName, u.serverSignature(m, ctx, rpc))
		}
	})
	p.P("}")
	p.P("")
	p.P("// Unimplemented%s answers every method with rpc.ErrUnimplemented.", server)
	p.P("type Unimplemented%s struct{}", server)
	p.P("")
	for _, m := range s.Methods {
		p.P("func (Unimplemented%s) %s%s {", server, m.GoName, u.serverSignature(m, ctx, rpc))
		switch m.Cardinality() {
		case descriptor.UnaryUnary, descriptor.StreamUnary:
			p.P("\treturn nil, %s.ErrUnimplemented", rpc)
		default:
			p.P("\treturn %s.ErrUnimplemented", rpc)
		}
		p.P("}")
		p.P("")
	}

	desc := "serviceDesc_" + s.GoName
	p.P("var %s = %s.ServiceDesc{", desc, rpc)
	p.Indent(func() {
		p.P("Name: %q,", s.FullName)
		p.P("HandlerType: (*%s)(nil),", server)
		p.P("File: %q,", s.File.Path)
		p.P("Methods: []%s.MethodDesc{", rpc)
		p.Indent(func() {
			for _, m := range s.Methods {
				u.methodDesc(&p, m, ctx, rpc, server)
			}
		})
		p.P("},")
	})
	p.P("}")
	p.P("")
	p.P("func Register%s(r %s.Registrar, s %s) {", server, rpc, server)
	p.P("\tr.RegisterService(&%s, s)", desc)
	p.P("}")
	return p.String()
}

func (u *unit) clientSignature(m *descriptor.Method, ctx, rpc string) string {
	var (
		in  = u.messageType(m.Input)
		out = u.messageType(m.Output)
	)
	switch m.Cardinality() {
	case descriptor.UnaryStream:
		return fmt.Sprintf("(ctx %s.Context, in *%s) (*%s.Stream[*%s], error)", ctx, in, rpc, out)
	case descriptor.StreamUnary:
		return fmt.Sprintf("(ctx %s.Context, in <-chan *%s) (*%s, error)", ctx, in, out)
	case descriptor.StreamStream:
		return fmt.Sprintf("(ctx %s.Context, in <-chan *%s) (*%s.Stream[*%s], error)", ctx, in, rpc, out)
	}
	return fmt.Sprintf("(ctx %s.Context, in *%s) (*%s, error)", ctx, in, out)
}

func (u *unit) serverSignature(m *descriptor.Method, ctx, rpc string) string {
	var (
		in  = u.messageType(m.Input)
		out = u.messageType(m.Output)
	)
	switch m.Cardinality() {
	case descriptor.UnaryStream:
		return fmt.Sprintf("(ctx %s.Context, in *%s, out %s.Sender[*%s]) error", ctx, in, rpc, out)
	case descriptor.StreamUnary:
		return fmt.Sprintf("(ctx %s.Context, in %s.Receiver[*%s]) (*%s, error)", ctx, rpc, in, out)
	case descriptor.StreamStream:
		return fmt.Sprintf("(ctx %s.Context, in %s.Receiver[*%s], out %s.Sender[*%s]) error", ctx, rpc, in, rpc, out)
	}
	return fmt.Sprintf("(ctx %s.Context, in *%s) (*%s, error)", ctx, in, out)
}

var handlerCtors = map[descriptor.MethodCardinality]string{
	descriptor.UnaryUnary:   "UnaryHandler",
	descriptor.UnaryStream:  "UnaryStreamHandler",
	descriptor.StreamUnary:  "StreamUnaryHandler",
	descriptor.StreamStream: "StreamStreamHandler",
}

var cardinalityNames = map[descriptor.MethodCardinality]string{
	descriptor.UnaryUnary:   "UnaryUnary",
	descriptor.UnaryStream:  "UnaryStream",
	descriptor.StreamUnary:  "StreamUnary",
	descriptor.StreamStream: "StreamStream",
}

func (u *unit) methodDesc(p *printer, m *descriptor.Method, ctx, rpc, server string) {
	var (
		c    = m.Cardinality()
		sig  = u.serverSignature(m, ctx, rpc)
		args = []string{"ctx", "in"}
	)
	if c == descriptor.UnaryStream || c == descriptor.StreamStream {
		args = append(args, "out")
	}
	p.P("{")
	p.Indent(func() {
		p.P("Name: %q,", m.Name)
		p.P("Cardinality: %s.%s,", u.use(descriptorPkg), cardinalityNames[c])
		p.P("Handler: %s.%s[%s](func(impl any, %s {", rpc, handlerCtors[c], u.messageType(m.Input), strings.TrimPrefix(sig, "("))
		p.P("\treturn impl.(%s).%s(%s)", server, m.GoName, strings.Join(args, ", "))
		p.P("}),")
	})
	p.P("},")
}
