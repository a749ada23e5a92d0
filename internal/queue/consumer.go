package queue

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// HandlerFunc processes one queue message body. Returning an error leaves
// the message on the queue for redelivery after the visibility timeout.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer runs a long-poll receive loop against one SQS queue.
type Consumer struct {
	sqsClient *sqs.Client
	queueURL  string
	name      string
	handle    HandlerFunc
	done      chan struct{}
}

func NewConsumer(sqsClient *sqs.Client, queueURL, name string, handle HandlerFunc) *Consumer {
	return &Consumer{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		name:      name,
		handle:    handle,
		done:      make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	log.Printf("[Queue] %s consumer started (queue=%s)", c.name, c.queueURL)
	go c.poll(ctx)
}

func (c *Consumer) Stop() {
	close(c.done)
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Queue] %s receive error: %v", c.name, err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, msg := range out.Messages {
			if err := c.handle(ctx, []byte(*msg.Body)); err != nil {
				log.Printf("[Queue] %s process error: %v", c.name, err)
				continue
			}
			c.deleteMessage(ctx, msg.ReceiptHandle)
		}
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
}
