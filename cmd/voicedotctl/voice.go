package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Drive the voice pipeline with text commands",
	}
	cmd.AddCommand(newVoiceProcessCmd(), newVoiceConfirmCmd())
	return cmd
}

func newVoiceProcessCmd() *cobra.Command {
	var userID, text string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract a payment intent and create pending transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.ProcessText(cmd.Context(), userID, text)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&text, "text", "", "payment command, e.g. \"send 5 DOT to alice\"")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newVoiceConfirmCmd() *cobra.Command {
	var userID, text, ids string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Answer a confirmation prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Confirm(cmd.Context(), userID, text, strings.Split(ids, ","))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&text, "text", "yes", "reply, e.g. \"confirm\" or \"cancel\"")
	cmd.Flags().StringVar(&ids, "ids", "", "comma separated transaction ids")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}
