// Package jsonpb maps dynamic messages to and from the canonical protobuf
// JSON form.
package jsonpb

import "fmt"

// JSONMappingError reports a value that has no mapping in either
// direction. Path is the dotted field path from the root message, with
// list indexes and map keys in brackets.
type JSONMappingError struct {
	Path string
	Msg  string
}

func (e *JSONMappingError) Error() string {
	if e.Path == "" {
		return "jsonpb: " + e.Msg
	}
	return fmt.Sprintf("jsonpb: %s: %s", e.Path, e.Msg)
}

func mappingErr(path, format string, args ...any) error {
	return &JSONMappingError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func key(path string, k string) string {
	return fmt.Sprintf("%s[%q]", path, k)
}
