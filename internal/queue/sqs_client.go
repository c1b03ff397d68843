package queue

import (
	"context"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rotisserie/eris"
)

const defaultRegion = "us-east-1"

// SQSClient sends and receives queue messages with AWS SQS.
type SQSClient struct {
	client            *sqs.Client
	queueURL          string
	visibilitySeconds int32
}

// SQSOptions configures NewSQSClient.
type SQSOptions struct {
	QueueURL          string
	Region            string
	VisibilitySeconds int
}

// NewSQSClient constructs an SQS-backed queue client.
func NewSQSClient(ctx context.Context, opts SQSOptions) (*SQSClient, error) {
	queueURL := strings.TrimSpace(opts.QueueURL)
	if queueURL == "" {
		return nil, eris.New("sqs queue url is required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = defaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "load aws config")
	}

	return &SQSClient{
		client:            sqs.NewFromConfig(cfg),
		queueURL:          queueURL,
		visibilitySeconds: int32(opts.VisibilitySeconds),
	}, nil
}

// Send delivers a message to the configured SQS queue.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	return eris.Wrap(err, "sqs send message")
}

// Receive long-polls for up to maxMessages messages.
func (s *SQSClient) Receive(ctx context.Context, maxMessages, waitSeconds int32) ([]Delivery, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(s.queueURL),
		MaxNumberOfMessages:         maxMessages,
		WaitTimeSeconds:             waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if s.visibilitySeconds > 0 {
		in.VisibilityTimeout = s.visibilitySeconds
	}
	out, err := s.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, eris.Wrap(err, "sqs receive message")
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		d := Delivery{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		}
		if raw, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			d.ReceiveCount, _ = strconv.Atoi(raw)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// Delete acknowledges a message.
func (s *SQSClient) Delete(ctx context.Context, receiptHandle string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return eris.Wrap(err, "sqs delete message")
}

var (
	_ Client   = (*SQSClient)(nil)
	_ Receiver = (*SQSClient)(nil)
)
