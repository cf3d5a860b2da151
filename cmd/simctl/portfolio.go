package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPortfolioCmd(root *rootConfig) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show holdings valued at current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := root.rc.Portfolio(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(view)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tQTY\tAVG\tPRICE\tVALUE\tP&L\tP&L %")
			for _, h := range view.Holdings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					h.Symbol, h.Quantity, h.AvgCost.StringFixed(2), h.Price.StringFixed(2),
					h.MarketValue.StringFixed(2), h.PnL.StringFixed(2), h.PnLPct.StringFixed(2))
			}
			fmt.Fprintf(w, "\ncash\t%s\n", view.CashBalance.StringFixed(2))
			fmt.Fprintf(w, "equity\t%s\n", view.TotalEquity.StringFixed(2))
			fmt.Fprintf(w, "unrealized\t%s (%s%%)\n", view.UnrealizedPnL.StringFixed(2), view.UnrealizedPnLPct.StringFixed(2))
			fmt.Fprintf(w, "realized\t%s\n", view.RealizedPnL.StringFixed(2))
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw view")
	return cmd
}

func newHistoryCmd(root *rootConfig) *cobra.Command {
	var page, size int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List executed trades, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := root.rc.History(cmd.Context(), page, size)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSIDE\tSYMBOL\tQTY\tPRICE\tTOTAL\tP&L")
			for _, e := range history.Entries {
				pnl := "-"
				if e.RealizedPnL != nil {
					pnl = e.RealizedPnL.StringFixed(2)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ExecutedAt.Format("2006-01-02 15:04:05"), e.Side, e.Symbol, e.Quantity,
					e.Price.StringFixed(2), e.Total.StringFixed(2), pnl)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number, from 0")
	cmd.Flags().IntVar(&size, "size", 0, "page size (server default when 0)")
	return cmd
}

func newStatsCmd(root *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show realized P&L statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := root.rc.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func newVerifyCmd(root *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check stored balances against the trade journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			consistent, detail, err := root.rc.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if !consistent {
				return fmt.Errorf("ledger drift: %s", detail)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ledger consistent")
			return nil
		},
	}
}
