package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/subcommands"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

type watchCmd struct {
	interval time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "print price changes for symbols until interrupted" }
func (*watchCmd) Usage() string {
	return `tracker watch [-interval <d>] SYMBOL...

  Polls each symbol and prints a line whenever its price changes. Stops on
  SIGINT or SIGTERM.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", 0, "override watch.poll_interval")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	cfg, err := loadConfig()
	if err != nil {
		fail("failed to load config: %v", err)
		return subcommands.ExitFailure
	}
	if c.interval > 0 {
		cfg.Watch.PollInterval = c.interval
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, cancel := signalContext(ctx, logger)
	defer cancel()

	mkt := newMarket(cfg, logger)
	if err := mkt.start(ctx); err != nil {
		fail("start dispatcher: %v", err)
		return subcommands.ExitFailure
	}
	defer mkt.stop(context.Background())

	var mu sync.Mutex
	printUpdate := func(u model.PriceUpdate) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(os.Stdout, "%s  %-8s %s\n",
			u.ObservedAt.Local().Format(time.TimeOnly), u.Symbol, u.Price.StringFixed(2))
	}

	watched := 0
	for _, sym := range f.Args() {
		if err := mkt.registry.Watch(sym, printUpdate); err != nil {
			fail("%s: %v", model.NormalizeSymbol(sym), err)
			continue
		}
		watched++
	}
	if watched == 0 {
		return subcommands.ExitFailure
	}

	logger.Info("watching symbols",
		"symbols", mkt.registry.Symbols(),
		"poll_interval", cfg.Watch.PollInterval,
	)
	<-ctx.Done()
	return subcommands.ExitSuccess
}
