package protomx

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrNilMessage = errors.New("protomx: nil message")

type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("protomx: got %s, want %s", e.Got, e.Want)
}

// FieldError is one violation found by a generated Validate method.
type FieldError struct {
	Path string
	Msg  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("protomx: %s: %s", e.Path, e.Msg)
}
