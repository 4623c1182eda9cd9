package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "VoiceDot/internal/errors"
)

type stubNotifier struct {
	channel Channel
	err     error
	events  []Event
}

func (s *stubNotifier) Channel() Channel { return s.channel }

func (s *stubNotifier) Notify(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &stubNotifier{channel: ChannelLog}
	bad := &stubNotifier{channel: ChannelWebhook, err: errors.New("boom")}
	d := NewFanout(ok, nil, bad)
	if d.Len() != 2 {
		t.Fatalf("expected 2 notifiers, got %d", d.Len())
	}

	err := d.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure})
	if err == nil || !strings.Contains(err.Error(), "channel webhook") {
		t.Fatalf("expected joined webhook error, got %v", err)
	}
	if len(ok.events) != 1 || len(bad.events) != 1 {
		t.Fatalf("every notifier should receive the event")
	}

	var nilDispatcher *FanoutDispatcher
	if err := nilDispatcher.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher should be a no-op: %v", err)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}, Client: srv.Client()}
	evt := FromError(xerrors.New(xerrors.CodeStorageFailure, "db down"), "/transactions", http.MethodGet)
	if err := n.Notify(context.Background(), evt); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Code != xerrors.CodeStorageFailure || got.Route != "/transactions" {
		t.Fatalf("unexpected payload %+v", got)
	}

	n.Headers = nil
	if err := n.Notify(context.Background(), evt); err == nil {
		t.Fatalf("expected error on 403")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	if err := n.Notify(context.Background(), Event{Code: xerrors.CodeUpstream, Message: "rpc down"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(buf.String(), "UPSTREAM_FAILURE") {
		t.Fatalf("expected code in log line, got %s", buf.String())
	}
}
