package queue

import "context"

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Receiver pulls messages from a queue backend and acknowledges them.
type Receiver interface {
	Receive(ctx context.Context, maxMessages, waitSeconds int32) ([]Delivery, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Delivery is one received message body and its acknowledgement handle.
type Delivery struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  int
}
