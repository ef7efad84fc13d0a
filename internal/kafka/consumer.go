package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/renu-clearing/internal/logging"
)

// Handler returns nil only when the message is done and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	topic   string
	workers int

	// MinBackoff and MaxBackoff bound the wait between attempts of a failing message.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, topic, workers)
}

func newConsumer(r reader, topic string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, topic: topic, workers: workers, MinBackoff: 200 * time.Millisecond, MaxBackoff: 30 * time.Second}
}

// Start fans messages out to the worker pool and blocks until ctx ends or the
// reader fails. Each partition is owned by one worker, so its messages are
// handled and committed in offset order. A failing message is retried with
// backoff and never committed past.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if err := c.handle(ctx, h, m); err != nil {
					continue // ctx ended; leave it for the next owner of the partition
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					c.log(m, "commit_error", err.Error())
				}
			}
		}(queues[i])
	}
	stop := func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case queues[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// handle runs h until it succeeds or ctx ends.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	wait := c.MinBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		c.log(m, "retry", fmt.Sprintf("attempt %d: %v", attempt, err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		if wait *= 2; wait > c.MaxBackoff {
			wait = c.MaxBackoff
		}
	}
}

func (c *Consumer) log(m kafka.Message, status, msg string) {
	logging.Log(logging.Fields{
		Service: "kafka",
		Step:    fmt.Sprintf("consume %s/%d@%d", c.topic, m.Partition, m.Offset),
		Status:  status,
		Message: msg,
	})
}
