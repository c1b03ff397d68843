package queue

import (
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		ContributionID: "contribution-123",
		RequestID:      "request-456",
		EnqueuedAt:     "2026-01-30T22:00:00Z",
		Version:        MessageVersion,
		Kind:           KindRetry,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageDefaultsKind(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"contributionId":"c-1","version":0}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.Kind != KindProcess {
		t.Fatalf("kind = %q, want %q", got.Kind, KindProcess)
	}
}

func TestDecodeMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := DecodeMessage([]byte("{")); err == nil {
		t.Fatal("expected error")
	}
}
