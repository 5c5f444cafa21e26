package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

type scriptedProvider struct {
	results []error
	output  string
	calls   int
}

func (p *scriptedProvider) Name() string  { return "stub" }
func (p *scriptedProvider) Model() string { return "stub-model" }

func (p *scriptedProvider) Complete(ctx context.Context, _ Request) (string, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.results) && p.results[idx] != nil {
		return "", p.results[idx]
	}
	return p.output, nil
}

type observedCall struct {
	purpose string
	failed  bool
}

type recordingObserver struct {
	calls []observedCall
}

func (o *recordingObserver) ObserveLLMCall(_, _, purpose string, err error, _ time.Duration) {
	o.calls = append(o.calls, observedCall{purpose: purpose, failed: err != nil})
}

func newTestRetrying(p Provider, attempts int, observer Observer) (*Retrying, *[]time.Duration) {
	r := NewRetrying(p, RetryConfig{MaxAttempts: attempts}, zap.NewNop(), observer)
	var delays []time.Duration
	r.wait = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func request() Request {
	return Request{Purpose: "assess", Messages: []Message{User("hello")}}
}

func TestRetryingRetriesTransientErrors(t *testing.T) {
	transient := &TransientError{Status: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
	provider := &scriptedProvider{results: []error{transient, transient}, output: "ok"}
	observer := &recordingObserver{}
	r, delays := newTestRetrying(provider, 3, observer)

	out, err := r.Complete(context.Background(), request())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output %q", out)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", provider.calls)
	}
	if len(*delays) != 2 || (*delays)[0] != time.Second || (*delays)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff delays: %v", *delays)
	}
	if len(observer.calls) != 3 || !observer.calls[0].failed || observer.calls[2].failed {
		t.Fatalf("unexpected observations: %+v", observer.calls)
	}
	if observer.calls[0].purpose != "assess" {
		t.Fatalf("expected purpose to be forwarded, got %q", observer.calls[0].purpose)
	}
}

func TestRetryingReportsUnavailableAfterExhaustion(t *testing.T) {
	transient := &TransientError{Status: http.StatusTooManyRequests}
	provider := &scriptedProvider{results: []error{transient, transient}}
	r, _ := newTestRetrying(provider, 2, nil)

	_, err := r.Complete(context.Background(), request())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected last transient error to be wrapped, got %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", provider.calls)
	}
}

func TestRetryingDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("invalid api key")
	provider := &scriptedProvider{results: []error{permanent}}
	r, _ := newTestRetrying(provider, 3, nil)

	_, err := r.Complete(context.Background(), request())
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("permanent error must not be reported as unavailable")
	}
	if provider.calls != 1 {
		t.Fatalf("expected single call, got %d", provider.calls)
	}
}

func TestRetryingTreatsAttemptTimeoutAsTransient(t *testing.T) {
	provider := &scriptedProvider{results: []error{context.DeadlineExceeded}, output: "late but fine"}
	r, _ := newTestRetrying(provider, 2, nil)

	out, err := r.Complete(context.Background(), request())
	if err != nil {
		t.Fatalf("expected retry after timeout, got %v", err)
	}
	if out != "late but fine" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRetryingStopsOnCancelledContext(t *testing.T) {
	provider := &scriptedProvider{results: []error{context.Canceled}}
	r, _ := newTestRetrying(provider, 3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Complete(ctx, request()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected single call, got %d", provider.calls)
	}
}

func TestRetryingRejectsEmptyRequest(t *testing.T) {
	provider := &scriptedProvider{}
	r, _ := newTestRetrying(provider, 3, nil)

	if _, err := r.Complete(context.Background(), Request{Messages: []Message{User("  ")}}); err == nil {
		t.Fatal("expected validation error")
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called, got %d calls", provider.calls)
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		System("be brief"),
		User("hi"),
		System(" and kind "),
		{Role: RoleAssistant, Content: "hello"},
	})

	if system != "be brief\n\nand kind" {
		t.Fatalf("unexpected system prompt %q", system)
	}
	if len(rest) != 2 || rest[0].Role != RoleUser || rest[1].Role != RoleAssistant {
		t.Fatalf("unexpected remaining messages: %+v", rest)
	}
}
