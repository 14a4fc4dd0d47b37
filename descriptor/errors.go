package descriptor

import (
	"fmt"
	"strings"
)

// CyclicImportError lists the files of an import cycle, first file
// repeated at the end.
type CyclicImportError struct {
	Cycle []string
}

func (e *CyclicImportError) Error() string {
	return "descriptor: import cycle: " + strings.Join(e.Cycle, " -> ")
}

type MissingImportError struct {
	File   string
	Import string
}

func (e *MissingImportError) Error() string {
	return fmt.Sprintf("descriptor: %s imports %q, which is not in the set", e.File, e.Import)
}

// UnresolvedTypeError names a type reference that matched nothing visible
// from Scope.
type UnresolvedTypeError struct {
	File  string
	Scope string
	Ref   string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("descriptor: %s: unresolved type %q in %s", e.File, e.Ref, e.Scope)
}

// NameCollisionError reports two declarations claiming one name. First and
// Second are "file:declaration" origins.
type NameCollisionError struct {
	Name   string
	First  string
	Second string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("descriptor: %q declared by both %s and %s", e.Name, e.First, e.Second)
}

// InvalidSchemaError covers structural problems in a descriptor that are
// not resolution failures, such as a repeated field number.
type InvalidSchemaError struct {
	File string
	Msg  string
}

func (e *InvalidSchemaError) Error() string {
	return fmt.Sprintf("descriptor: %s: %s", e.File, e.Msg)
}
