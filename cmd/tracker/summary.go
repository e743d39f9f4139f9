package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/rickgao/portfolio-tracker/internal/database"
	"github.com/rickgao/portfolio-tracker/internal/model"
	"github.com/rickgao/portfolio-tracker/internal/portfolio"
)

type summaryCmd struct {
	currency string
	offline  bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print holdings and portfolio metrics at current prices" }
func (*summaryCmd) Usage() string {
	return `tracker summary [-currency <code>] [-offline]

  Loads holdings from Postgres, refreshes each symbol's price with one quote
  and prints every holding with the portfolio totals and the best and worst
  performers. With -offline the stored prices are used.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", portfolio.DefaultCurrency, "ISO 4217 code used to display amounts")
	f.BoolVar(&c.offline, "offline", false, "skip quote refresh and use stored prices")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fail("failed to load config: %v", err)
		return subcommands.ExitFailure
	}
	if err := cfg.ValidateStorage(); err != nil {
		fail("invalid storage config: %v", err)
		return subcommands.ExitFailure
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, cancel := signalContext(ctx, logger)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		fail("connect database: %v", err)
		return subcommands.ExitFailure
	}
	defer pool.Close()

	holdings, err := database.NewHoldingRepository(pool).List(ctx)
	if err != nil {
		fail("list holdings: %v", err)
		return subcommands.ExitFailure
	}
	if len(holdings) == 0 {
		fmt.Println("No holdings.")
		return subcommands.ExitSuccess
	}

	if !c.offline {
		mkt := newMarket(cfg, logger)
		if err := mkt.start(ctx); err != nil {
			fail("start dispatcher: %v", err)
			return subcommands.ExitFailure
		}
		refreshPrices(ctx, mkt, holdings)
		mkt.stop(context.Background())
	}

	c.print(holdings, portfolio.ComputeMetrics(holdings))
	return subcommands.ExitSuccess
}

// refreshPrices sets each holding's current price from one quote per symbol.
// Symbols whose quote fails keep their stored price.
func refreshPrices(ctx context.Context, mkt *market, holdings []model.Holding) {
	prices := make(map[string]*model.Quote)
	for _, h := range holdings {
		if _, done := prices[h.Symbol]; done {
			continue
		}
		q, err := mkt.registry.GetQuote(ctx, h.Symbol)
		if err != nil {
			fail("%s: %v (using stored price)", h.Symbol, err)
		}
		prices[h.Symbol] = q
	}

	for i := range holdings {
		if q := prices[holdings[i].Symbol]; q != nil {
			holdings[i].CurrentPrice = q.Current
		}
	}
}

func (c *summaryCmd) print(holdings []model.Holding, m portfolio.Metrics) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tQTY\tBUY\tPRICE\tVALUE\tGAIN")
	for _, h := range holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			h.Symbol,
			h.Name,
			h.Quantity.String(),
			portfolio.FormatMoney(h.BuyPrice, c.currency),
			portfolio.FormatMoney(h.CurrentPrice, c.currency),
			portfolio.FormatMoney(h.Value(), c.currency),
			portfolio.FormatPercent(h.Performance()),
		)
	}
	tw.Flush()

	fmt.Println()
	fmt.Printf("Total value:       %s\n", portfolio.FormatMoney(m.TotalValue, c.currency))
	fmt.Printf("Total investment:  %s\n", portfolio.FormatMoney(m.TotalInvestment, c.currency))
	fmt.Printf("Total gain:        %s (%s)\n",
		portfolio.FormatMoney(m.TotalGain, c.currency), portfolio.FormatPercent(m.TotalGainPct))
	if m.TopPerformer != nil {
		fmt.Printf("Top performer:     %s %s\n", m.TopPerformer.Symbol, portfolio.FormatPercent(m.TopPerformer.Performance()))
	}
	if m.WorstPerformer != nil {
		fmt.Printf("Worst performer:   %s %s\n", m.WorstPerformer.Symbol, portfolio.FormatPercent(m.WorstPerformer.Performance()))
	}
}
