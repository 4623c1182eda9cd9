package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Query on-chain balances",
	}
	cmd.AddCommand(newWalletBalanceCmd())
	return cmd
}

func newWalletBalanceCmd() *cobra.Command {
	var symbols string
	cmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the balances of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var list []string
			if symbols != "" {
				list = strings.Split(symbols, ",")
			}
			balances, err := client.Balance(cmd.Context(), args[0], list...)
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(balances))
			for k := range balances {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "TOKEN\tBALANCE")
			for _, k := range keys {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", k, balances[k])
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&symbols, "tokens", "", "comma separated token symbols, defaults to DOT")
	return cmd
}
