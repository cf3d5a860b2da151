package main

import (
	"fmt"
	"strconv"
	"strings"

	"virtual-trading-sim/internal/client"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newAccountCmd(root *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "open-account CAPITAL",
		Short: "Open an account funded with CAPITAL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capital, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("bad capital %q: %w", args[0], err)
			}
			account, err := root.rc.OpenAccount(cmd.Context(), capital)
			if err != nil {
				return err
			}
			return printJSON(account)
		},
	}
}

func newBuyCmd(root *rootConfig) *cobra.Command {
	return newOrderCmd(root, "BUY")
}

func newSellCmd(root *rootConfig) *cobra.Command {
	return newOrderCmd(root, "SELL")
}

func newOrderCmd(root *rootConfig, side string) *cobra.Command {
	var limit string

	cmd := &cobra.Command{
		Use:   strings.ToLower(side) + " SYMBOL|ID QUANTITY",
		Short: fmt.Sprintf("Place a %s order at the current simulated price", side),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("bad quantity %q: %w", args[1], err)
			}

			req := client.TradeRequest{Side: side, OrderType: "MARKET", Quantity: qty}
			if id, err := strconv.ParseUint(args[0], 10, 64); err == nil {
				req.InstrumentID = uint(id)
			} else {
				req.Symbol = strings.ToUpper(args[0])
			}
			if limit != "" {
				lp, err := decimal.NewFromString(limit)
				if err != nil {
					return fmt.Errorf("bad limit price %q: %w", limit, err)
				}
				req.OrderType = "LIMIT"
				req.LimitPrice = &lp
			}

			res, err := root.rc.ExecuteTrade(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("order rejected: %s", res.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\ncash: %s\n", res.Message, res.NewBalance.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().StringVar(&limit, "limit", "", "record a limit price (fills at market)")
	return cmd
}
