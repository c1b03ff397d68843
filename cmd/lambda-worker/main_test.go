package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"schedule-backend/internal/contributions"
	"schedule-backend/internal/queue"
)

type fakeProcessor struct {
	errs  map[string]error
	calls []string
}

func (f *fakeProcessor) RunJob(ctx context.Context, id string, kind queue.Kind) error {
	f.calls = append(f.calls, id)
	return f.errs[id]
}

func record(t *testing.T, messageID, contributionID string) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{ContributionID: contributionID, Kind: queue.KindProcess})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return events.SQSMessage{MessageId: messageID, Body: string(body)}
}

func TestHandleEventReportsRetryableFailures(t *testing.T) {
	proc := &fakeProcessor{errs: map[string]error{
		"c-2": errors.New("database unavailable"),
		"c-3": contributions.ErrNotFound,
	}}
	event := events.SQSEvent{Records: []events.SQSMessage{
		record(t, "m1", "c-1"),
		record(t, "m2", "c-2"),
		record(t, "m3", "c-3"),
		{MessageId: "m4", Body: "{bad-json"},
	}}

	resp := handleEvent(context.Background(), proc, event)

	if len(proc.calls) != 3 {
		t.Fatalf("expected 3 processed records, got %d", len(proc.calls))
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m2" {
		t.Fatalf("expected only m2 to be reported, got %+v", resp.BatchItemFailures)
	}
}
