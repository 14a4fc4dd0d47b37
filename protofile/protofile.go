// Package protofile compiles .proto source text into descriptor protos,
// the input the descriptor loader accepts.
package protofile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/yoheimuta/go-protoparser/v4"
	gproto "google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Parse compiles one .proto source. Imports are recorded but not read.
func Parse(filename string, src []byte) (*descriptorpb.FileDescriptorProto, error) {
	p, err := protoparser.Parse(bytes.NewReader(src),
		protoparser.WithFilename(filename),
		protoparser.WithPermissive(true),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "protofile: parse %s", filename)
	}

	b := &builder{fd: &descriptorpb.FileDescriptorProto{Name: gproto.String(filename)}}
	b.file(p)
	if b.err != nil {
		return nil, b.err
	}
	return b.fd, nil
}

// Accessor reads the source of an import path.
type Accessor func(path string) ([]byte, error)

// MapAccessor serves sources from memory.
func MapAccessor(files map[string]string) Accessor {
	return func(path string) ([]byte, error) {
		src, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(src), nil
	}
}

// DirAccessor searches import paths in order, like protoc -I.
func DirAccessor(dirs ...string) Accessor {
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	return func(path string) ([]byte, error) {
		for _, dir := range dirs {
			b, err := os.ReadFile(filepath.Join(dir, path))
			if err == nil {
				return b, nil
			}
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
		return nil, os.ErrNotExist
	}
}

type Compiler struct {
	Accessor Accessor
}

// Compile parses paths and everything they import. Imports of
// google/protobuf files that the accessor cannot find are left out of the
// set; the loader supplies them from the well-known type table.
func (c *Compiler) Compile(paths ...string) (*descriptorpb.FileDescriptorSet, error) {
	access := c.Accessor
	if access == nil {
		access = DirAccessor()
	}

	var (
		set   = &descriptorpb.FileDescriptorSet{}
		seen  = make(map[string]bool)
		queue = append([]string(nil), paths...)
	)
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if seen[path] {
			continue
		}
		seen[path] = true

		src, err := access(path)
		if err != nil {
			if os.IsNotExist(err) && strings.HasPrefix(path, "google/protobuf/") {
				continue
			}
			return nil, errors.Wrapf(err, "protofile: read %s", path)
		}
		fd, err := Parse(path, src)
		if err != nil {
			return nil, err
		}
		set.File = append(set.File, fd)
		queue = append(queue, fd.GetDependency()...)
	}
	return set, nil
}
