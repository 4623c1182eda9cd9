package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"VoiceDot/internal/auth"
	"VoiceDot/internal/config"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed JWT using the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Path())
			if err != nil {
				return err
			}
			svc, err := auth.NewService(auth.Config{
				Mode:     auth.ModeJWT,
				Secret:   cfg.Auth.Secret,
				Issuer:   cfg.Auth.Issuer,
				Audience: cfg.Auth.Audience,
				TokenTTL: time.Duration(cfg.Auth.TokenTTLSeconds) * time.Second,
			})
			if err != nil {
				return err
			}
			token, expires, err := svc.Issue(subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires %s\n", token, expires.UTC().Format(time.RFC3339))
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "subject (user id) of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to auth.token_ttl_seconds")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
