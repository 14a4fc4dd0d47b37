package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hysios/protomx/config"
	"github.com/hysios/protomx/gen"
	"github.com/hysios/protomx/logger"
	"github.com/hysios/protomx/protofile"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func getModuleName(dir string) (string, error) {
	gomodPath := filepath.Join(dir, "go.mod")
	content, err := os.ReadFile(gomodPath)
	if err != nil {
		return "", err
	}

	f, err := modfile.Parse("go.mod", content, nil)
	if err != nil {
		return "", err
	}

	return f.Module.Mod.Path, nil
}

// optionFlags map one to one onto config keys.
func optionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "options file (yaml, toml or json)",
		},
		&cli.BoolFlag{
			Name:  "validated-variant",
			Usage: "add a Validate method to every message",
		},
		&cli.BoolFlag{
			Name:  "include-well-known-types",
			Usage: "generate google.protobuf types instead of mapping them to native Go types",
		},
		&cli.StringFlag{
			Name:  "naming",
			Usage: "identifier convention: go or strcase",
		},
		&cli.StringFlag{
			Name:  "import-prefix",
			Usage: "import path of the output directory, defaults to the module in go.mod",
		},
		&cli.StringFlag{
			Name:  "root-package",
			Usage: "package name for files that declare no package",
		},
	}
}

// loadOptions layers the config file, then flags that were set.
func loadOptions(c *cli.Context) (gen.Options, error) {
	var providers []config.Provider
	if path := c.String("config"); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			return gen.Options{}, err
		}
		providers = append(providers, file)
	}

	flags := make(map[string]interface{})
	for flag, key := range map[string]string{
		"validated-variant":        config.KeyValidatedVariant,
		"include-well-known-types": config.KeyIncludeWellKnownTypes,
	} {
		if c.IsSet(flag) {
			flags[key] = c.Bool(flag)
		}
	}
	for flag, key := range map[string]string{
		"naming":        config.KeyNamingConvention,
		"import-prefix": config.KeyImportPrefix,
		"root-package":  config.KeyRootPackage,
	} {
		if c.IsSet(flag) {
			flags[key] = c.String(flag)
		}
	}
	providers = append(providers, config.NewMapProvider(flags))

	return config.NewConfig(nil, providers...).Options()
}

// readInputs compiles .proto files and merges descriptor sets. Targets are
// the proto files named on the command line, or none when a descriptor set
// is given, since every file of a set is meant to be generated.
func readInputs(paths, includes []string) (*descriptorpb.FileDescriptorSet, []string, error) {
	var (
		set    = &descriptorpb.FileDescriptorSet{}
		protos []string
		hasSet bool
		seen   = make(map[string]bool)
	)
	for _, p := range paths {
		if strings.HasSuffix(p, ".proto") {
			protos = append(protos, relativeTo(p, includes))
			continue
		}
		hasSet = true
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read %s", p)
		}
		var fds descriptorpb.FileDescriptorSet
		if err := proto.Unmarshal(b, &fds); err != nil {
			return nil, nil, errors.Wrapf(err, "decode descriptor set %s", p)
		}
		for _, fd := range fds.GetFile() {
			if !seen[fd.GetName()] {
				seen[fd.GetName()] = true
				set.File = append(set.File, fd)
			}
		}
	}

	if len(protos) > 0 {
		compiled, err := (&protofile.Compiler{Accessor: protofile.DirAccessor(includes...)}).Compile(protos...)
		if err != nil {
			return nil, nil, err
		}
		for _, fd := range compiled.GetFile() {
			if !seen[fd.GetName()] {
				seen[fd.GetName()] = true
				set.File = append(set.File, fd)
			}
		}
	}
	if hasSet {
		return set, nil, nil
	}
	return set, protos, nil
}

// relativeTo names p the way imports refer to it: relative to the first
// include directory holding it.
func relativeTo(p string, includes []string) string {
	for _, dir := range includes {
		if rel, err := filepath.Rel(dir, p); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(p)
}

func writeFiles(dir string, files []*gen.File) error {
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "create %s", filepath.Dir(path))
		}
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
		logger.Cli.Debug("write", zap.String("path", path))
	}
	return nil
}

func genCmd() *cli.Command {
	return &cli.Command{
		Name:      "gen",
		Usage:     "generate Go code from .proto files or descriptor sets",
		ArgsUsage: "<file.proto|set.binpb>...",
		Flags: append(optionFlags(),
			&cli.StringSliceFlag{
				Name:    "proto-path",
				Usage:   "directories searched for imports",
				Aliases: []string{"I"},
			},
			&cli.StringFlag{
				Name:    "output",
				Usage:   "output directory",
				Value:   ".",
				Aliases: []string{"o"},
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.ShowSubcommandHelp(c)
			}
			opts, err := loadOptions(c)
			if err != nil {
				return err
			}
			if opts.ImportPrefix == "" {
				if mod, err := getModuleName("."); err == nil {
					opts.ImportPrefix = mod
				}
			}
			opts.Logger = logger.Logger

			includes := c.StringSlice("proto-path")
			if len(includes) == 0 {
				includes = []string{"."}
			}
			set, targets, err := readInputs(c.Args().Slice(), includes)
			if err != nil {
				return err
			}
			if len(opts.Targets) == 0 {
				opts.Targets = targets
			}

			// nothing is written unless every unit renders
			files, err := gen.Generate(set, opts)
			if err != nil {
				return err
			}
			if err := writeFiles(c.String("output"), files); err != nil {
				return err
			}
			logger.Cli.Info("generated", zap.Int("files", len(files)), zap.String("output", c.String("output")))
			return nil
		},
	}
}
