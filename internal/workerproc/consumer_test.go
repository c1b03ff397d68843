package workerproc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"schedule-backend/internal/contributions"
	"schedule-backend/internal/queue"
	"schedule-backend/internal/workerpool"
)

type fakeReceiver struct {
	mu         sync.Mutex
	batches    [][]queue.Delivery
	receiveErr error
	deleted    []string
	onEmpty    func()
}

func (f *fakeReceiver) Receive(ctx context.Context, maxMessages, waitSeconds int32) ([]queue.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiveErr != nil {
		err := f.receiveErr
		f.receiveErr = nil
		return nil, err
	}
	if len(f.batches) == 0 {
		if f.onEmpty != nil {
			f.onEmpty()
		}
		return nil, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeReceiver) Delete(ctx context.Context, receiptHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, receiptHandle)
	return nil
}

type fakeProcessor struct {
	mu    sync.Mutex
	err   error
	calls []string
	kinds []queue.Kind
}

func (f *fakeProcessor) RunJob(ctx context.Context, id string, kind queue.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	f.kinds = append(f.kinds, kind)
	return f.err
}

// inlineScheduler runs tasks on the caller's goroutine.
type inlineScheduler struct{}

func (inlineScheduler) Submit(key string, run workerpool.Task) error {
	run(context.Background())
	return nil
}

type rejectingScheduler struct{}

func (rejectingScheduler) Submit(key string, run workerpool.Task) error {
	return workerpool.ErrQueueFull
}

func delivery(t *testing.T, id string, msg queue.Message) queue.Delivery {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return queue.Delivery{ID: id, Body: string(body), ReceiptHandle: "r-" + id, ReceiveCount: 1}
}

func TestHandleDeletesMessageOnSuccess(t *testing.T) {
	recv := &fakeReceiver{}
	proc := &fakeProcessor{}
	c := &Consumer{Receiver: recv, Processor: proc, Pool: inlineScheduler{}}

	c.Handle(context.Background(), delivery(t, "m1", queue.Message{ContributionID: "c-1", RequestID: "req-1", Kind: queue.KindRetry}))

	if len(recv.deleted) != 1 || recv.deleted[0] != "r-m1" {
		t.Fatalf("expected delete of r-m1, got %v", recv.deleted)
	}
	if len(proc.calls) != 1 || proc.calls[0] != "c-1" || proc.kinds[0] != queue.KindRetry {
		t.Fatalf("unexpected processor calls: %v %v", proc.calls, proc.kinds)
	}
}

func TestHandleKeepsMessageOnFailure(t *testing.T) {
	recv := &fakeReceiver{}
	proc := &fakeProcessor{err: errors.New("database unavailable")}
	c := &Consumer{Receiver: recv, Processor: proc, Pool: inlineScheduler{}}

	c.Handle(context.Background(), delivery(t, "m2", queue.Message{ContributionID: "c-2"}))

	if len(recv.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(recv.deleted))
	}
}

func TestHandleDeletesUnknownContribution(t *testing.T) {
	recv := &fakeReceiver{}
	proc := &fakeProcessor{err: contributions.ErrNotFound}
	c := &Consumer{Receiver: recv, Processor: proc, Pool: inlineScheduler{}}

	c.Handle(context.Background(), delivery(t, "m3", queue.Message{ContributionID: "gone"}))

	if len(recv.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(recv.deleted))
	}
}

func TestHandleDeletesInvalidJSON(t *testing.T) {
	recv := &fakeReceiver{}
	proc := &fakeProcessor{}
	c := &Consumer{Receiver: recv, Processor: proc, Pool: inlineScheduler{}}

	c.Handle(context.Background(), queue.Delivery{ID: "m4", Body: "{bad-json", ReceiptHandle: "r-m4"})
	c.Handle(context.Background(), queue.Delivery{ID: "m5", Body: `{"requestId":"req-5"}`, ReceiptHandle: "r-m5"})
	c.Handle(context.Background(), queue.Delivery{ID: "m6", Body: "  ", ReceiptHandle: "r-m6"})

	if len(recv.deleted) != 3 {
		t.Fatalf("expected 3 deletes, got %d", len(recv.deleted))
	}
	if len(proc.calls) != 0 {
		t.Fatalf("expected no processing, got %v", proc.calls)
	}
}

func TestRunDispatchesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv := &fakeReceiver{
		receiveErr: errors.New("throttled"),
		batches: [][]queue.Delivery{
			{delivery(t, "a", queue.Message{ContributionID: "c-a"}), delivery(t, "b", queue.Message{ContributionID: "c-b"})},
		},
		onEmpty: cancel,
	}
	proc := &fakeProcessor{}
	c := &Consumer{Receiver: recv, Processor: proc, Pool: inlineScheduler{}, ErrorBackoff: time.Millisecond}

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(proc.calls) != 2 {
		t.Fatalf("expected 2 processed messages, got %d", len(proc.calls))
	}
	if len(recv.deleted) != 2 {
		t.Fatalf("expected 2 deletes, got %d", len(recv.deleted))
	}
}

func TestRunLeavesMessagesWhenPoolIsFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv := &fakeReceiver{
		batches: [][]queue.Delivery{{delivery(t, "a", queue.Message{ContributionID: "c-a"})}},
		onEmpty: cancel,
	}
	proc := &fakeProcessor{}
	c := &Consumer{Receiver: recv, Processor: proc, Pool: rejectingScheduler{}}

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(proc.calls) != 0 || len(recv.deleted) != 0 {
		t.Fatalf("expected message to stay queued, calls=%v deleted=%v", proc.calls, recv.deleted)
	}
}

func TestParseMessageRequiresContributionID(t *testing.T) {
	_, _, err := ParseMessage(`{"requestId":"req-1"}`)
	var missing ErrMissingContributionID
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingContributionID, got %v", err)
	}
	if missing.RequestID != "req-1" {
		t.Fatalf("expected request id req-1, got %q", missing.RequestID)
	}

	msg, meta, err := ParseMessage(`{"contributionId":"c-1"}`)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.Kind != queue.KindProcess {
		t.Fatalf("expected default kind process, got %q", msg.Kind)
	}
	if meta.BodyLen == 0 || meta.BodySHA == "" {
		t.Fatalf("expected meta to be populated, got %+v", meta)
	}
}
