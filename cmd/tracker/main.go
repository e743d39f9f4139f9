// Command tracker serves a live-priced stock portfolio and offers one-shot
// quote tools against the same rate-limited client.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&versionCmd{}, "")

	commander.Register(&serveCmd{}, "server")

	commander.Register(&quoteCmd{}, "market data")
	commander.Register(&watchCmd{}, "market data")
	commander.Register(&summaryCmd{}, "market data")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
