package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestGenerateSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-test",
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"content": "```json\n{\"type\":\"single\",\"items\":[]}\n```",
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	resp, err := client.Generate(context.Background(), llm.Request{
		Transcript: "pay 10 DOT to bob",
		Chains:     []string{"polkadot"},
		Tokens:     []string{"DOT"},
		Contacts:   []llm.Contact{{Name: "bob", Chain: "polkadot"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != `{"type":"single","items":[]}` || resp.Model != "gpt-test" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if !strings.HasPrefix(captured.Authorization, "Bearer ") {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}

	if captured.Body["model"] == "" {
		t.Fatalf("model field missing in request")
	}
	format, ok := captured.Body["response_format"].(map[string]any)
	if !ok || format["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", captured.Body["response_format"])
	}
	messages, _ := captured.Body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(messages))
	}
	user, _ := messages[1].(map[string]any)
	if content, _ := user["content"].(string); !strings.Contains(content, "pay 10 DOT to bob") || !strings.Contains(content, "bob (polkadot)") {
		t.Fatalf("user prompt missing context: %q", content)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	_, err = client.Generate(context.Background(), llm.Request{Transcript: "test"})
	if !xerrors.Is(err, xerrors.CodeUpstream) {
		t.Fatalf("expected upstream error when http status is not success, got %v", err)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{}", "{}"},
		{"```json\n{}\n```", "{}"},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  {\"a\":1}  \n", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Fatalf("stripFences(%q) = %q want %q", tc.in, got, tc.want)
		}
	}
}
