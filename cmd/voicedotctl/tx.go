package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"VoiceDot/sdk/go/voicedot"
)

func newTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Inspect, build and execute transactions",
	}
	cmd.AddCommand(newTxListCmd(), newTxGetCmd(), newTxBuildCmd(), newTxEstimateCmd(), newTxExecuteCmd())
	return cmd
}

func newTxListCmd() *cobra.Command {
	var (
		opts     voicedot.ListOptions
		statuses string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if statuses != "" {
				opts.Statuses = strings.Split(statuses, ",")
			}
			items, err := client.ListTransactions(cmd.Context(), opts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSTATUS\tAMOUNT\tTOKEN\tRECIPIENT\tHASH")
			for _, tx := range items {
				hash := "-"
				if tx.TransactionHash != nil {
					hash = *tx.TransactionHash
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Status, tx.Amount, tx.TokenSymbol, tx.RecipientAddress, hash)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&statuses, "status", "", "comma separated status filter")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func newTxGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			tx, err := client.GetTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tx)
		},
	}
}

func bindBuildFlags(cmd *cobra.Command, req *voicedot.BuildRequest) {
	cmd.Flags().StringVar(&req.Token, "symbol", "DOT", "token symbol")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "decimal amount")
	cmd.Flags().StringVar(&req.Recipient, "to", "", "recipient address")
	cmd.Flags().StringVar(&req.OriginChain, "from-chain", "", "origin chain")
	cmd.Flags().StringVar(&req.DestinationChain, "to-chain", "", "destination chain")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
}

func newTxBuildCmd() *cobra.Command {
	var (
		req      voicedot.BuildRequest
		slippage int
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an unsigned transfer call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("slippage-bps") {
				req.SlippageBps = &slippage
			}
			res, err := client.Build(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	bindBuildFlags(cmd, &req)
	cmd.Flags().StringVar(&req.MinReceive, "min-receive", "", "minimum amount to receive on the destination")
	cmd.Flags().IntVar(&slippage, "slippage-bps", 0, "slippage tolerance in basis points")
	return cmd
}

func newTxEstimateCmd() *cobra.Command {
	var req voicedot.BuildRequest
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the origin fee of a transfer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.EstimateXCM(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	bindBuildFlags(cmd, &req)
	return cmd
}

func newTxExecuteCmd() *cobra.Command {
	var (
		req      voicedot.ExecuteRequest
		slippage int
	)
	cmd := &cobra.Command{
		Use:   "execute <id>",
		Short: "Submit a signed extrinsic for a confirmed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			req.TransactionID = args[0]
			if cmd.Flags().Changed("slippage-bps") {
				req.SlippageBps = &slippage
			}
			res, err := client.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.SignedExtrinsic, "extrinsic", "", "hex encoded signed extrinsic")
	cmd.Flags().StringVar(&req.UserID, "user", "", "owner of the transaction")
	cmd.Flags().StringVar(&req.Chain, "chain", "", "override the submission chain")
	cmd.Flags().StringVar(&req.Token, "symbol", "", "expected token for cross-chain transfers")
	cmd.Flags().StringVar(&req.MinReceive, "min-receive", "", "minimum amount to receive on the destination")
	cmd.Flags().IntVar(&slippage, "slippage-bps", 0, "slippage tolerance in basis points")
	_ = cmd.MarkFlagRequired("extrinsic")
	return cmd
}
