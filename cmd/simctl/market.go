package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPricesCmd(root *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show the current price of every active instrument",
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := root.rc.Prices(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(prices)
		},
	}
}

func newInstrumentsCmd(root *rootConfig) *cobra.Command {
	var kind, search string

	cmd := &cobra.Command{
		Use:   "instruments",
		Short: "List tradable instruments",
		RunE: func(cmd *cobra.Command, args []string) error {
			instruments, err := root.rc.Instruments(cmd.Context(), kind, search)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSYMBOL\tNAME\tKIND\tSECTOR\tPRICE\tCHANGE %")
			for _, i := range instruments {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					i.ID, i.Symbol, i.Name, i.Kind, i.Sector, i.CurrentPrice.StringFixed(2), i.ChangePct.StringFixed(2))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "EQUITY or CRYPTO")
	cmd.Flags().StringVar(&search, "search", "", "match symbol, name or sector")
	return cmd
}

func newMoversCmd(root *rootConfig) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "movers",
		Short: "Show the instruments furthest from their base price",
		RunE: func(cmd *cobra.Command, args []string) error {
			movers, err := root.rc.Movers(cmd.Context(), n)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tPRICE\tCHANGE %")
			for _, q := range movers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", q.Symbol, q.Price.StringFixed(2), q.ChangePct.StringFixed(2))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&n, "n", 10, "number of movers")
	return cmd
}
