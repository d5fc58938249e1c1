package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "storectl",
		Usage: "Inspect vector stores and their write-ahead logs offline",
		Commands: []*cli.Command{
			{
				Name:    "summary",
				Aliases: []string{"s"},
				Usage:   "Print the summary of a store as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "root", Value: "data", Usage: "storage root directory"},
					&cli.StringFlag{Name: "path", Required: true, Usage: "store path relative to the root"},
				},
				Action: Summary,
			},
			{
				Name:    "convert-wal",
				Aliases: []string{"c"},
				Usage:   "Re-encode a WAL file between the binary and text formats",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "input WAL file"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "output WAL file"},
					&cli.StringFlag{Name: "format", Value: "text", Usage: "output format: binary or text"},
				},
				Action: ConvertWAL,
			},
		},
	}
}

// run executes the command line and returns the process exit code
func run(args []string) int {
	if err := newApp().Run(args); err != nil {
		slog.Error("Command failed", "error", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args))
}
