package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func noWait(context.Context, time.Duration) error { return nil }

func TestTavilySearch(t *testing.T) {
	var got tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"answer":null,"results":[
			{"title":"A","url":"https://a.example","content":"alpha","score":0.9},
			{"title":"B","url":"https://b.example","content":"beta","score":0.8},
			{"title":"C","url":"https://c.example","content":"gamma","score":0.7},
			{"title":"D","url":"https://d.example","content":"delta","score":0.6}
		]}`))
	}))
	defer server.Close()

	s := NewTavily("key", WithEndpoint(server.URL))
	results, err := s.Search(context.Background(), "hiking boots recommendations 2026", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if got.Query != "hiking boots recommendations 2026" || got.MaxResults != 3 || got.IncludeAnswer {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if len(results) != 3 {
		t.Fatalf("expected results capped at 3, got %d", len(results))
	}
	if results[0] != (Result{Title: "A", URL: "https://a.example", Content: "alpha", Score: 0.9}) {
		t.Fatalf("unexpected first result %+v", results[0])
	}
}

func TestTavilyRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"A"}]}`))
	}))
	defer server.Close()

	s := NewTavily("key", WithEndpoint(server.URL))
	s.wait = noWait

	results, err := s.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || calls.Load() != 3 {
		t.Fatalf("expected success on the third attempt, got %d results after %d calls", len(results), calls.Load())
	}
}

func TestTavilyPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	s := NewTavily("key", WithEndpoint(server.URL))
	s.wait = noWait

	if _, err := s.Search(context.Background(), "q", 3); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent failures must not be retried, got %d calls", calls.Load())
	}
}

func TestTavilyExhaustsAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewTavily("key", WithEndpoint(server.URL), WithMaxAttempts(2))
	s.wait = noWait

	_, err := s.Search(context.Background(), "q", 3)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestTavilyNotConfigured(t *testing.T) {
	_, err := NewTavily("  ").Search(context.Background(), "q", 3)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
