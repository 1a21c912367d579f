package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cloudweave/internal/geo"
	"cloudweave/internal/request"
)

func testRequest() request.JobRequest {
	return request.JobRequest{
		Box: geo.NewBox(10, 10, 20, 20),
		Range: request.TimeRange{
			Start: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC),
		},
		Zoom:       5,
		MaxWorkers: 4,
	}
}

// sseServer writes the given payloads as data frames and then returns.
func sseServer(t *testing.T, payloads []string, gotQuery chan<- url.Values) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotQuery != nil {
			gotQuery <- r.URL.Query()
		}
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			w.(http.Flusher).Flush()
		}
	}))
}

func collect(t *testing.T, sub *Subscription, ch <-chan Message) []Message {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not finish")
	}
	var out []Message
	for {
		select {
		case m := <-ch:
			out = append(out, m)
		default:
			return out
		}
	}
}

func kinds(msgs []Message) []Kind {
	out := make([]Kind, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Kind)
	}
	return out
}

func equalKinds(a, b []Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestClient_ScenarioReachesTerminal(t *testing.T) {
	queries := make(chan url.Values, 1)
	srv := sseServer(t, []string{
		`{"progress":0,"message":"Initializing…"}`,
		`{"progress":50,"message":"Processing"}`,
		`{"progress":100,"message":"Done","video_url":"https://x/manifest.m3u8"}`,
		`{"progress":100,"message":"after terminal"}`,
	}, queries)
	defer srv.Close()

	ch := make(chan Message, 16)
	c := NewClient(srv.URL, WithRequestIDs(func() string { return "req-1" }))
	sub := c.Start(context.Background(), testRequest(), func(m Message) { ch <- m })
	msgs := collect(t, sub, ch)

	want := []Kind{KindOpened, KindProgress, KindProgress, KindTerminal}
	if !equalKinds(kinds(msgs), want) {
		t.Fatalf("kinds = %v, want %v", kinds(msgs), want)
	}
	if msgs[2].Event.Progress != 50 || msgs[2].Event.Message != "Processing" {
		t.Errorf("progress event = %+v", msgs[2].Event)
	}
	if got := msgs[3].Event.MediaURL; got != "https://x/manifest.m3u8" {
		t.Errorf("MediaURL = %q", got)
	}
	if err := sub.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after terminal", err)
	}
	if sub.ID() != "req-1" {
		t.Errorf("ID() = %q", sub.ID())
	}

	q := <-queries
	for k, v := range map[string]string{"lon_min": "10", "lat_max": "20", "zoom": "5", "max_workers": "4", "start_iso": "2024-07-01T00:00:00.000Z"} {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestClient_MalformedFrameDoesNotCloseStream(t *testing.T) {
	srv := sseServer(t, []string{
		`{not json`,
		`{"progress":100,"message":"done","video_url":"/output.mp4"}`,
	}, nil)
	defer srv.Close()

	ch := make(chan Message, 16)
	sub := NewClient(srv.URL).Start(context.Background(), testRequest(), func(m Message) { ch <- m })
	msgs := collect(t, sub, ch)

	want := []Kind{KindOpened, KindMalformed, KindTerminal}
	if !equalKinds(kinds(msgs), want) {
		t.Fatalf("kinds = %v, want %v", kinds(msgs), want)
	}
	if !errors.Is(msgs[1].Err, ErrMalformedEvent) {
		t.Errorf("malformed err = %v", msgs[1].Err)
	}
	if got, want := msgs[2].Event.MediaURL, srv.URL+"/output.mp4"; got != want {
		t.Errorf("relative MediaURL resolved to %q, want %q", got, want)
	}
}

func TestClient_UnexpectedClose(t *testing.T) {
	srv := sseServer(t, []string{`{"progress":10,"message":"stitched"}`}, nil)
	defer srv.Close()

	ch := make(chan Message, 16)
	sub := NewClient(srv.URL).Start(context.Background(), testRequest(), func(m Message) { ch <- m })
	msgs := collect(t, sub, ch)

	want := []Kind{KindOpened, KindProgress, KindError}
	if !equalKinds(kinds(msgs), want) {
		t.Fatalf("kinds = %v, want %v", kinds(msgs), want)
	}
	if !errors.Is(msgs[2].Err, ErrStream) || !errors.Is(msgs[2].Err, ErrUnexpectedClose) {
		t.Errorf("error = %v", msgs[2].Err)
	}
	if !errors.Is(sub.Err(), ErrUnexpectedClose) {
		t.Errorf("Err() = %v", sub.Err())
	}
}

func TestClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid datetime format", http.StatusBadRequest)
	}))
	defer srv.Close()

	ch := make(chan Message, 4)
	sub := NewClient(srv.URL).Start(context.Background(), testRequest(), func(m Message) { ch <- m })
	msgs := collect(t, sub, ch)

	if !equalKinds(kinds(msgs), []Kind{KindError}) {
		t.Fatalf("kinds = %v, want [error]", kinds(msgs))
	}
	if !errors.Is(msgs[0].Err, ErrUnexpectedStatus) {
		t.Errorf("error = %v", msgs[0].Err)
	}
	if !strings.Contains(msgs[0].Err.Error(), "Invalid datetime format") {
		t.Errorf("error does not carry body: %v", msgs[0].Err)
	}
}

func TestClient_WrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	ch := make(chan Message, 4)
	sub := NewClient(srv.URL).Start(context.Background(), testRequest(), func(m Message) { ch <- m })
	msgs := collect(t, sub, ch)
	if len(msgs) != 1 || !errors.Is(msgs[0].Err, ErrNotEventStream) {
		t.Fatalf("messages = %+v, want one ErrNotEventStream", msgs)
	}
}

func TestSubscription_CancelIsIdempotent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"progress\":1,\"message\":\"stitched\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ch := make(chan Message, 16)
	sub := NewClient(srv.URL).Start(context.Background(), testRequest(), func(m Message) { ch <- m })

	// Wait for the first progress message so the stream is known to be open.
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case m := <-ch:
			seen = m.Kind == KindProgress
		case <-deadline:
			t.Fatal("stream never delivered progress")
		}
	}

	sub.Cancel()
	sub.Cancel()
	msgs := collect(t, sub, ch)
	sub.Cancel()

	for _, m := range msgs {
		if m.Kind == KindError {
			t.Fatalf("cancel produced an error message: %v", m.Err)
		}
	}
	if !errors.Is(sub.Err(), context.Canceled) {
		t.Fatalf("Err() = %v, want context.Canceled", sub.Err())
	}
}
