package main

import (
	"os"

	"github.com/hysios/protomx/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "protomx",
		Usage: "protomx compiles protobuf schemas into Go messages and rpc stubs",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "verbose output",
				Aliases: []string{"v"},
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger.SetLogger(l)
			}
			return nil
		},
		Commands: []*cli.Command{
			genCmd(),
			pluginCmd(),
			decodeCmd(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		LogError(err)
		os.Exit(1)
	}
}

func LogError(err error) {
	if err != nil {
		logger.Cli.Error("run command failed", zap.Error(err))
	}
}
