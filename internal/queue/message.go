package queue

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// MessageVersion is the current wire version of Message.
const MessageVersion = 1

// Kind selects which pipeline entry point a consumer runs.
type Kind string

const (
	KindProcess Kind = "process"
	KindRetry   Kind = "retry"
)

// Message is the payload sent to downstream queue consumers.
type Message struct {
	ContributionID string `json:"contributionId"`
	RequestID      string `json:"requestId"`
	EnqueuedAt     string `json:"enqueuedAt"`
	Version        int    `json:"version"`
	Kind           Kind   `json:"kind"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	return data, eris.Wrap(err, "encode queue message")
}

// DecodeMessage parses a JSON payload into a Message. A missing kind means
// KindProcess, which is what version 0 producers sent.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, eris.Wrap(err, "decode queue message")
	}
	if msg.Kind == "" {
		msg.Kind = KindProcess
	}
	return msg, nil
}
