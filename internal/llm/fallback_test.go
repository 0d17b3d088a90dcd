package llm

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type scriptedClient struct {
	resp  Response
	err   error
	calls int
}

func (s *scriptedClient) Complete(ctx context.Context, req Request) (Response, error) {
	s.calls++
	return s.resp, s.err
}

func TestFallbackClientUsesPrimary(t *testing.T) {
	primary := &scriptedClient{resp: Response{Text: "primary"}}
	fallback := &scriptedClient{resp: Response{Text: "fallback"}}
	client := NewFallbackClient(primary, fallback, logging.NewWithWriter(io.Discard, "error"))

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "primary" || fallback.calls != 0 {
		t.Fatalf("expected primary response only, got %q (fallback calls %d)", resp.Text, fallback.calls)
	}
}

func TestFallbackClientFallsBack(t *testing.T) {
	primary := &scriptedClient{err: errors.New("down")}
	fallback := &scriptedClient{resp: Response{Text: "fallback"}}
	client := NewFallbackClient(primary, fallback, logging.NewWithWriter(io.Discard, "error"))

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "fallback" {
		t.Fatalf("expected fallback response, got %q", resp.Text)
	}
}

func TestFallbackClientWithoutFallback(t *testing.T) {
	primary := &scriptedClient{err: errors.New("down")}
	client := NewFallbackClient(primary, nil, logging.NewWithWriter(io.Discard, "error"))
	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected primary error")
	}
}
