package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/jsonpb"
	"github.com/hysios/protomx/logger"
	"github.com/hysios/protomx/wire"
	"github.com/hysios/protomx/wkt"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func decodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "print binary messages as JSON",
		ArgsUsage: "[payload file, default stdin]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "type",
				Usage:    "fully-qualified message name",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "schema",
				Usage:    ".proto files or descriptor sets declaring the type",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "proto-path",
				Usage:   "directories searched for imports",
				Aliases: []string{"I"},
			},
			&cli.BoolFlag{
				Name:  "delimited",
				Usage: "input is a stream of size-delimited messages",
			},
			&cli.BoolFlag{
				Name:  "emit-defaults",
				Usage: "render fields at their default value",
			},
			&cli.StringFlag{
				Name:  "indent",
				Usage: "pretty print with this indent",
			},
		},
		Action: func(c *cli.Context) error {
			includes := c.StringSlice("proto-path")
			if len(includes) == 0 {
				includes = []string{"."}
			}
			set, _, err := readInputs(c.StringSlice("schema"), includes)
			if err != nil {
				return err
			}
			schema, err := descriptor.LoadFiles(set.GetFile(),
				descriptor.WithFallback(wkt.FileProtos()...),
				descriptor.WithLogger(logger.Logger),
			)
			if err != nil {
				return err
			}
			desc := schema.Message(c.String("type"))
			if desc == nil {
				return errors.Errorf("message %s is not in the schema", c.String("type"))
			}

			in := io.Reader(os.Stdin)
			if c.NArg() > 0 {
				f, err := os.Open(c.Args().First())
				if err != nil {
					return errors.Wrap(err, "open payload")
				}
				defer f.Close()
				in = f
			}

			opts := jsonpb.MarshalOptions{
				EmitDefaults: c.Bool("emit-defaults"),
				Indent:       c.String("indent"),
				Resolver:     schema,
			}
			return decode(c.App.Writer, in, desc, opts, c.Bool("delimited"))
		},
	}
}

// decode writes one JSON document per line.
func decode(w io.Writer, r io.Reader, desc *descriptor.Message, opts jsonpb.MarshalOptions, delimited bool) error {
	emit := func(b []byte) error {
		_, err := fmt.Fprintf(w, "%s\n", b)
		return err
	}

	if !delimited {
		b, err := io.ReadAll(r)
		if err != nil {
			return errors.Wrap(err, "read payload")
		}
		m, err := wire.Unmarshal(b, desc)
		if err != nil {
			return err
		}
		out, err := opts.Marshal(m)
		if err != nil {
			return err
		}
		return emit(out)
	}

	dr := wire.NewDelimitedReader(r)
	for {
		m, err := dr.Next(desc)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		out, err := opts.Marshal(m)
		if err != nil {
			return err
		}
		if err := emit(out); err != nil {
			return err
		}
	}
}
