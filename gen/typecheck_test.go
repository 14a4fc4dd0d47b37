package gen_test

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path"
	"sort"
	"testing"

	"github.com/hysios/protomx/gen"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// unitImporter type-checks generated units on demand and falls back to
// the source importer for everything else.
type unitImporter struct {
	fset  *token.FileSet
	dir   string
	units map[string][]*ast.File
	done  map[string]*types.Package
	src   types.ImporterFrom
}

func (im *unitImporter) Import(p string) (*types.Package, error) {
	return im.ImportFrom(p, im.dir, 0)
}

func (im *unitImporter) ImportFrom(p, _ string, mode types.ImportMode) (*types.Package, error) {
	if pkg, ok := im.done[p]; ok {
		return pkg, nil
	}
	files, ok := im.units[p]
	if !ok {
		return im.src.ImportFrom(p, im.dir, mode)
	}
	conf := types.Config{Importer: im}
	pkg, err := conf.Check(p, im.fset, files, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "check %s", p)
	}
	im.done[p] = pkg
	return pkg, nil
}

// typecheck generates files with opts and runs the Go type checker over
// every unit.
func typecheck(t *testing.T, files map[string]string, opts gen.Options) {
	t.Helper()
	if testing.Short() {
		t.Skip("type checking imports from source")
	}
	out, err := gen.GenerateFiles(compile(t, files), opts)
	require.NoError(t, err)

	dir, err := os.Getwd()
	require.NoError(t, err)

	fset := token.NewFileSet()
	im := &unitImporter{
		fset:  fset,
		dir:   dir,
		units: make(map[string][]*ast.File),
		done:  make(map[string]*types.Package),
		src:   importer.ForCompiler(fset, "source", nil).(types.ImporterFrom),
	}
	for _, f := range out {
		af, err := parser.ParseFile(fset, f.Path, f.Content, 0)
		require.NoError(t, err, "%s:\n%s", f.Path, f.Content)
		ip := path.Join(opts.ImportPrefix, path.Dir(f.Path))
		im.units[ip] = append(im.units[ip], af)
	}

	var paths []string
	for p := range im.units {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		_, err := im.Import(p)
		require.NoError(t, err, p)
	}
}

func TestGeneratedCodeTypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		opts  gen.Options
	}{
		{
			name: "only oneof fields",
			files: map[string]string{"pk.proto": `syntax = "proto3";
package pk;
message Pick {
    oneof choice {
        bool on = 1;
        int32 count = 2;
        string name = 3;
    }
}
`},
			opts: gen.Options{ImportPrefix: "example.com/api"},
		},
		{
			name:  "shop",
			files: map[string]string{"shop.proto": shopProto},
			opts:  gen.Options{ImportPrefix: "example.com/api", ValidatedVariant: true},
		},
		{
			name:  "well known types",
			files: map[string]string{"shop.proto": shopProto},
			opts:  gen.Options{IncludeWellKnownTypes: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typecheck(t, tt.files, tt.opts)
		})
	}
}
