package buffer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type memoryLedger struct {
	mu   sync.Mutex
	runs []Run
}

func (l *memoryLedger) Record(_ context.Context, run Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func invocationBody(t *testing.T, inv invocation) string {
	t.Helper()
	_, body, err := encodeInvocation(inv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return body
}

func TestRunnerProcessesAndRecords(t *testing.T) {
	proc := &countingProcessor{result: Result{Outcome: OutcomeProcessed, BufferID: "b1"}}
	ledger := &memoryLedger{}
	r := NewRunner(proc, nil, ledger, nil, logging.Default())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = fixedClock(now)

	run, err := r.Handle(context.Background(), invocationBody(t, invocation{ConversationID: "c1", NotBefore: now}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if run.Outcome != OutcomeProcessed || run.BufferID != "b1" || run.ConversationID != "c1" {
		t.Fatalf("unexpected run %#v", run)
	}
	if len(ledger.runs) != 1 {
		t.Fatalf("expected run recorded, got %d", len(ledger.runs))
	}
}

func TestRunnerRequeuesEarlyInvocation(t *testing.T) {
	proc := &countingProcessor{}
	queue := &stubQueue{}
	r := NewRunner(proc, queue, nil, nil, logging.Default())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = fixedClock(now)

	run, err := r.Handle(context.Background(), invocationBody(t, invocation{ConversationID: "c1", NotBefore: now.Add(20 * time.Minute)}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if run.Outcome != OutcomeDeferred {
		t.Fatalf("expected deferred, got %s", run.Outcome)
	}
	if len(proc.calls) != 0 {
		t.Fatalf("processor must not run early")
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected re-queue")
	}
	inv, _ := decodeInvocation(queue.sent[0].body)
	if inv.Attempt != 1 {
		t.Fatalf("expected attempt counter, got %d", inv.Attempt)
	}
}

func TestRunnerMalformedBody(t *testing.T) {
	r := NewRunner(&countingProcessor{}, nil, nil, nil, logging.Default())
	if _, err := r.Handle(context.Background(), "{not json"); !errors.Is(err, ErrMalformedInvocation) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if _, err := r.Handle(context.Background(), `{"id":"x"}`); !errors.Is(err, ErrMalformedInvocation) {
		t.Fatalf("expected malformed error for missing conversation, got %v", err)
	}
}

func TestWorkerDeletesHandledMessages(t *testing.T) {
	now := time.Now().UTC()
	okBody := invocationBody(t, invocation{ConversationID: "ok", NotBefore: now})
	failBody := invocationBody(t, invocation{ConversationID: "fail", NotBefore: now})
	queue := &stubQueue{inbox: []QueueMessage{
		{ID: "1", Body: okBody, ReceiptHandle: "r-ok"},
		{ID: "2", Body: failBody, ReceiptHandle: "r-fail"},
		{ID: "3", Body: "garbage", ReceiptHandle: "r-garbage"},
	}}
	proc := ProcessorFunc(func(_ context.Context, conversationID string) (Result, error) {
		if conversationID == "fail" {
			return Result{}, errors.New("db unavailable")
		}
		return Result{Outcome: OutcomeProcessed}, nil
	})
	worker := NewWorker(NewRunner(proc, nil, nil, nil, logging.Default()), queue, logging.Default(), WithWorkerCount(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for {
		queue.mu.Lock()
		n := len(queue.deleted)
		queue.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	worker.Wait()

	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.deleted) != 2 || queue.deleted[0] != "r-ok" || queue.deleted[1] != "r-garbage" {
		t.Fatalf("expected ok and garbage deleted, failed kept, got %v", queue.deleted)
	}
}

func TestMemoryQueueDelayedDelivery(t *testing.T) {
	q := NewMemoryQueue(4)
	if err := q.Send(context.Background(), "later", 20*time.Millisecond); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := q.Send(context.Background(), "now", 0); err != nil {
		t.Fatalf("send: %v", err)
	}
	first, err := q.Receive(context.Background(), 1, 1)
	if err != nil || len(first) != 1 || first[0].Body != "now" {
		t.Fatalf("expected immediate message first, got %#v %v", first, err)
	}
	second, err := q.Receive(context.Background(), 1, 1)
	if err != nil || len(second) != 1 || second[0].Body != "later" {
		t.Fatalf("expected delayed message, got %#v %v", second, err)
	}
}

func TestClampDelay(t *testing.T) {
	if clampDelay(-time.Second) != 0 {
		t.Fatalf("negative delays clamp to zero")
	}
	if clampDelay(time.Hour) != MaxQueueDelay {
		t.Fatalf("long delays clamp to the queue maximum")
	}
}

func TestRunnerRecordsHandedOffFailure(t *testing.T) {
	proc := &countingProcessor{result: Result{Outcome: OutcomeHandedOff, BufferID: "b1", Failure: "load conversation: timeout"}}
	ledger := &memoryLedger{}
	r := NewRunner(proc, nil, ledger, nil, logging.Default())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = fixedClock(now)

	run, err := r.Handle(context.Background(), invocationBody(t, invocation{ConversationID: "c1", NotBefore: now}))
	if err != nil {
		t.Fatalf("handed off buffers are not retried: %v", err)
	}
	if run.Outcome != OutcomeHandedOff || run.ErrorMessage != "load conversation: timeout" {
		t.Fatalf("unexpected run %#v", run)
	}
	if len(ledger.runs) != 1 || ledger.runs[0].ErrorMessage == "" {
		t.Fatalf("expected failure recorded in the ledger, got %#v", ledger.runs)
	}
}
