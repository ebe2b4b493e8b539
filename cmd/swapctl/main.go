// Package main provides swapctl, the administrative CLI for the relayer's
// swap store.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the relayer TOML config file",
		EnvVars: []string{"RELAYER_CONFIG"},
	}

	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "log at debug level",
	}
)

func main() {
	app := &cli.App{
		Name:  "swapctl",
		Usage: "inspect and administer HTLC relayer swaps",
		Flags: []cli.Flag{
			configFlag,
			verboseFlag,
		},
		Commands: []*cli.Command{
			migrateCommand,
			listCommand,
			getCommand,
			statsCommand,
			failCommand,
			purgeCommand,
			expiredCommand,
			replayCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "swapctl: %v\n", err)
		os.Exit(1)
	}
}
