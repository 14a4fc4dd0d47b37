// Package naming derives target-language identifiers and JSON field names
// from protobuf declarations.
package naming

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
)

// Convention selects the casing rules used for generated identifiers.
type Convention int

const (
	// Go follows protoc-gen-go: words split on '_' and lower-to-upper
	// transitions, digits kept, a leading '_' becomes 'X'.
	Go Convention = iota
	// Strcase delegates to strcase.ToCamel.
	Strcase
)

func (c Convention) String() string {
	switch c {
	case Go:
		return "go"
	case Strcase:
		return "strcase"
	}
	return fmt.Sprintf("Convention(%d)", int(c))
}

// ParseConvention maps an option value to a Convention. The empty string
// selects Go.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "go", "default":
		return Go, nil
	case "strcase", "camel":
		return Strcase, nil
	}
	return Go, errors.Errorf("naming: unknown convention %q", s)
}

// Pascal renders one protobuf name segment as an exported identifier.
func (c Convention) Pascal(s string) string {
	var out string
	switch c {
	case Strcase:
		out = strcase.ToCamel(s)
		if strings.HasPrefix(s, "_") {
			out = "X" + out
		}
	default:
		out = GoCamelCase(s)
	}
	return Sanitize(out)
}

func CamelCase(s string) string {
	return strcase.ToCamel(s)
}

func LowerCamel(s string) string {
	return strcase.ToLowerCamel(s)
}

// GoCamelCase camel-cases a protobuf name for use as a Go identifier.
func GoCamelCase(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '.' && i+1 < len(s) && isLower(s[i+1]):
			// drop '.' before a lowercase letter
		case c == '.':
			b = append(b, '_')
		case c == '_' && (i == 0 || s[i-1] == '.'):
			b = append(b, 'X')
		case c == '_' && i+1 < len(s) && isLower(s[i+1]):
			// drop '_' before a lowercase letter
		case isDigit(c):
			b = append(b, c)
		default:
			if isLower(c) {
				c -= 'a' - 'A'
			}
			b = append(b, c)
			for ; i+1 < len(s) && isLower(s[i+1]); i++ {
				b = append(b, s[i+1])
			}
		}
	}
	return string(b)
}

// JSONName is the default json_name protoc assigns to a field: underscores
// are removed and the letter after each one is upper-cased.
func JSONName(s string) string {
	var b []byte
	var wasUnderscore bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' {
			if wasUnderscore && isLower(c) {
				c -= 'a' - 'A'
			}
			b = append(b, c)
		}
		wasUnderscore = c == '_'
	}
	return string(b)
}

// SnakeName inverts JSONName for field mask paths.
func SnakeName(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUpper(c) {
			b = append(b, '_')
			c += 'a' - 'A'
		}
		b = append(b, c)
	}
	return string(b)
}

// Sanitize makes s a usable Go identifier.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	if isDigit(s[0]) {
		s = "_" + s
	}
	if token.Lookup(s).IsKeyword() {
		s += "_"
	}
	return s
}

// PackageName turns the last segment of a protobuf package into a Go
// package name.
func PackageName(pkg string) string {
	if i := strings.LastIndexByte(pkg, '.'); i >= 0 {
		pkg = pkg[i+1:]
	}
	return Sanitize(strings.ToLower(strings.ReplaceAll(pkg, "-", "_")))
}

func isLower(c byte) bool { return 'a' <= c && c <= 'z' }
func isUpper(c byte) bool { return 'A' <= c && c <= 'Z' }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }
