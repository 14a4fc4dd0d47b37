package naming

import "strings"

// Scope records which declaration owns each identifier of one output
// namespace.
type Scope struct {
	owners map[string]string
}

func NewScope(reserved ...string) *Scope {
	s := &Scope{owners: make(map[string]string)}
	for _, r := range reserved {
		s.owners[r] = ""
	}
	return s
}

// Claim assigns ident to origin. It reports the previous owner and false
// when ident already belongs to someone else. Reserved identifiers report
// an empty owner.
func (s *Scope) Claim(ident, origin string) (string, bool) {
	if prev, ok := s.owners[ident]; ok && prev != origin {
		return prev, false
	}
	s.owners[ident] = origin
	return "", true
}

func (s *Scope) Taken(ident string) bool {
	_, ok := s.owners[ident]
	return ok
}

// NestedSuffix is appended to a nested type identifier that collides with a
// hoisted one. It is derived only from the chain of enclosing declarations,
// so the same schema always yields the same name.
func NestedSuffix(c Convention, enclosing []string) string {
	var sb strings.Builder
	sb.WriteString("_In")
	for _, name := range enclosing {
		sb.WriteString(c.Pascal(name))
	}
	return sb.String()
}
