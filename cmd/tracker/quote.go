package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/rickgao/portfolio-tracker/internal/model"
	"github.com/rickgao/portfolio-tracker/internal/portfolio"
)

type quoteCmd struct {
	asJSON bool
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "fetch current quotes for one or more symbols" }
func (*quoteCmd) Usage() string {
	return `tracker quote [-json] SYMBOL...

  Fetches one quote per symbol through the rate-limited dispatcher and
  prints them. Rate-limited requests are retried; symbols that fail are
  reported and make the command exit non-zero.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "print quotes as JSON lines")
}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	cfg, err := loadConfig()
	if err != nil {
		fail("failed to load config: %v", err)
		return subcommands.ExitFailure
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

	status := subcommands.ExitSuccess
	var quotes []*model.Quote
	for _, sym := range f.Args() {
		q, err := mkt.registry.GetQuote(ctx, sym)
		if err != nil {
			fail("%s: %v", model.NormalizeSymbol(sym), err)
			status = subcommands.ExitFailure
			continue
		}
		quotes = append(quotes, q)
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, q := range quotes {
			if err := enc.Encode(q); err != nil {
				fail("encode quote: %v", err)
				return subcommands.ExitFailure
			}
		}
		return status
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\tCHANGE %\tHIGH\tLOW\tOPEN\tPREV CLOSE\t")
	for _, q := range quotes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			q.Symbol,
			q.Current.StringFixed(2),
			q.Change.StringFixed(2),
			portfolio.FormatPercent(q.PercentChange),
			q.High.StringFixed(2),
			q.Low.StringFixed(2),
			q.Open.StringFixed(2),
			q.PreviousClose.StringFixed(2),
		)
	}
	if err := tw.Flush(); err != nil {
		return subcommands.ExitFailure
	}
	return status
}
