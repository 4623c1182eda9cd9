package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTxListPrintsTable(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{{
			"id": "tx-1", "status": "pending", "amount": "5", "token_symbol": "DOT", "recipient_address": "5Grw",
		}}})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "--token", "abc", "tx", "list", "--user", "u1", "--status", "pending,confirmed")
	if err != nil {
		t.Fatalf("tx list: %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "user_id=u1") || !strings.Contains(gotQuery, "status=pending%2Cconfirmed") {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if !strings.Contains(out, "tx-1") || !strings.Contains(out, "pending") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTxGetSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"transaction not found"}}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, "--server", srv.URL, "tx", "get", "missing")
	if err == nil || !strings.Contains(err.Error(), "transaction not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestTokenIssueRequiresSubject(t *testing.T) {
	if _, err := runCLI(t, "token", "issue"); err == nil {
		t.Fatal("expected missing --sub to fail")
	}
}
