package protomx

import (
	"fmt"
	"unicode/utf8"

	"github.com/hysios/protomx/descriptor"
	"go.uber.org/multierr"
)

// Violations collects the failures of a generated Validate method. The
// zero value is ready to use.
type Violations struct {
	err error
}

// Index is the path of element i of the list at path.
func Index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// Key is the path of the map entry k at path.
func Key(path string, k any) string {
	return fmt.Sprintf("%s[%v]", path, k)
}

func (v *Violations) add(path, format string, args ...any) {
	v.err = multierr.Append(v.err, &FieldError{Path: path, Msg: fmt.Sprintf(format, args...)})
}

// String requires s to be valid UTF-8.
func (v *Violations) String(path, s string) {
	if !utf8.ValidString(s) {
		v.add(path, "invalid UTF-8")
	}
}

// Enum requires n to be a declared value of e.
func (v *Violations) Enum(path string, e *descriptor.Enum, n int32) {
	if e.ByNumber(descriptor.EnumNumber(n)) == nil {
		v.add(path, "%d is not a value of %s", n, e.FullName)
	}
}

// Message validates a nested message when it is generated with the
// validated variant.
func (v *Violations) Message(path string, m Message) {
	if m == nil {
		return
	}
	val, ok := m.(Validator)
	if !ok {
		return
	}
	if err := val.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			if fe, ok := e.(*FieldError); ok {
				v.err = multierr.Append(v.err, &FieldError{Path: path + "." + fe.Path, Msg: fe.Msg})
				continue
			}
			v.err = multierr.Append(v.err, e)
		}
	}
}

func (v *Violations) Err() error { return v.err }
