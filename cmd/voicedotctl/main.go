package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"VoiceDot/sdk/go/voicedot"
)

var (
	serverURL   string
	accessToken string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "voicedotctl",
		Short:        "Operator CLI for the VoiceDot payment service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("VOICEDOT_URL", "http://localhost:8080"), "VoiceDot API base URL")
	root.PersistentFlags().StringVar(&accessToken, "token", os.Getenv("VOICEDOT_TOKEN"), "bearer token for authenticated deployments")

	root.AddCommand(newTxCmd(), newVoiceCmd(), newWalletCmd(), newTokenCmd())
	return root
}

func newClient() (*voicedot.Client, error) {
	client, err := voicedot.NewClient(serverURL, nil)
	if err != nil {
		return nil, err
	}
	client.SetAccessToken(accessToken)
	return client, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
