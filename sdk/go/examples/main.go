package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"VoiceDot/sdk/go/voicedot"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/voice/process", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(voicedot.ProcessResult{
			SessionID:              "session-demo",
			Transcript:             "send 2 DOT to alice",
			TransactionIDs:         []string{"tx-demo"},
			ConfirmationPromptText: "You asked to send 2 DOT to 5Grwva...utQY. Do you want to proceed?",
		})
	})
	mux.HandleFunc("/voice/confirm", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(voicedot.ConfirmResult{
			SessionID:      "session-demo",
			Status:         "confirmed",
			TransactionIDs: []string{"tx-demo"},
			ResponseText:   "Confirmed. Sign the transaction in your wallet to send it.",
		})
	})
	mux.HandleFunc("/transactions/tx-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(voicedot.Transaction{
			ID:          "tx-demo",
			Amount:      "2",
			TokenSymbol: "DOT",
			Status:      "confirmed",
			CreatedAt:   time.Now().Add(-time.Minute).Unix(),
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := voicedot.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	processed, err := client.ProcessText(ctx, "demo", "send 2 DOT to alice")
	if err != nil {
		panic(err)
	}
	fmt.Printf("prompt: %s\n", processed.ConfirmationPromptText)

	confirmed, err := client.Confirm(ctx, "demo", "yes", processed.TransactionIDs)
	if err != nil {
		panic(err)
	}
	fmt.Printf("status=%s reply=%s\n", confirmed.Status, confirmed.ResponseText)

	tx, err := client.GetTransaction(ctx, confirmed.TransactionIDs[0])
	if err != nil {
		panic(err)
	}
	fmt.Printf("transaction %s: %s %s (%s)\n", tx.ID, tx.Amount, tx.TokenSymbol, tx.Status)
}
