package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-console/pkg/stream"
)

func newTestClient(url string) *Client {
	return New(url, 2*time.Second)
}

func collectEvents(t *testing.T, c *Client) ([]stream.Event, stream.Result, error) {
	t.Helper()
	var events []stream.Event
	res, err := c.Research(context.Background(), ResearchRequest{Topic: "t", Model: "m"}, func(ev stream.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, res, err
}

func TestResearchSendsTopicAndModel(t *testing.T) {
	var got ResearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/research", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		_ = stream.Encode(w, stream.Complete("done"))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv.URL + "/")
	_, err := c.Research(context.Background(), ResearchRequest{Topic: "quantum", Model: "openai/gpt-4o"}, func(stream.Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, ResearchRequest{Topic: "quantum", Model: "openai/gpt-4o"}, got)
}

func TestResearchDecodesFlushedFragments(t *testing.T) {
	parts := []string{
		"data: {\"type\":\"update\",\"message\":\"Searc",
		"hing for: a\"}\n\ndata: {\"type\":\"upd",
		"ate\",\"message\":\"Scraping: https://x\"}\n",
		"\ndata: not-json\n\ndata: {\"type\":\"complete\",\"report\":\"r\"}\n\n",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range parts {
			_, _ = io.WriteString(w, p)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)

	events, res, err := collectEvents(t, newTestClient(srv.URL))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Searching for: a", events[0].Message)
	assert.Equal(t, "Scraping: https://x", events[1].Message)
	assert.Equal(t, stream.TypeComplete, events[2].Type)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, res.Terminal)
}

func TestResearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	events, _, err := collectEvents(t, newTestClient(srv.URL))
	require.Error(t, err)
	assert.Empty(t, events)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "Server error: 500 - boom", err.Error())
}

func TestResearchEmptyStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	_, _, err := collectEvents(t, newTestClient(srv.URL))
	assert.ErrorIs(t, err, ErrStreamEmpty)
}

func TestResearchWithoutTerminalEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = stream.Encode(w, stream.Update("planner", "Searching for: a"))
	}))
	t.Cleanup(srv.Close)

	events, res, err := collectEvents(t, newTestClient(srv.URL))
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.False(t, res.Terminal)
}

func TestResearchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, _, err := collectEvents(t, newTestClient(url))
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "connect", transportErr.Op)
	assert.Contains(t, err.Error(), "Failed to connect to research agent")
}

func TestResearchStopsOnErrStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = stream.Encode(w, stream.Complete("r"))
		_ = stream.Encode(w, stream.Update("", "late"))
	}))
	t.Cleanup(srv.Close)

	var seen []stream.Event
	_, err := newTestClient(srv.URL).Research(context.Background(), ResearchRequest{Topic: "t"}, func(ev stream.Event) error {
		seen = append(seen, ev)
		if ev.Terminal() {
			return stream.ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestResearchCallbackErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = stream.Encode(w, stream.Update("", "a"))
	}))
	t.Cleanup(srv.Close)

	boom := errors.New("boom")
	_, err := newTestClient(srv.URL).Research(context.Background(), ResearchRequest{Topic: "t"}, func(stream.Event) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(HealthStatus{Status: "ok", Service: "Deep Research Agent API", Version: "2.0.0"})
	}))
	t.Cleanup(srv.Close)

	status, err := newTestClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "2.0.0", status.Version)
}

func TestHealthStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).Health(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}
