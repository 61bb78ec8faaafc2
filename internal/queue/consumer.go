package queue

import (
	"context"
	"sync"
	"time"

	"github.com/webclinic017/pgjobq/pkg/log"
)

// Consumer pulls deliveries from one queue in the background and hands
// them out on a channel. Several consumers (in one process or many) can
// share a queue; the claim protocol keeps each message with exactly one
// of them at a time. Each delivery still needs an explicit Ack or
// Release from whoever drains the channel.
type Consumer struct {
	queue      *Queue
	batchSize  int
	visibility time.Duration
	logger     log.Logger

	out chan *Delivery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConsumerConfig configures a background consumer.
type ConsumerConfig struct {
	BatchSize  int           // messages per claim (default: 1)
	Visibility time.Duration // per-delivery visibility timeout (default: engine's)
	Buffer     int           // channel capacity (default: BatchSize)
}

// NewConsumer creates a consumer for the queue.
func NewConsumer(q *Queue, cfg ConsumerConfig, logger log.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = cfg.BatchSize
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		queue:      q,
		batchSize:  cfg.BatchSize,
		visibility: cfg.Visibility,
		logger:     logger,
		out:        make(chan *Delivery, cfg.Buffer),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins receiving in the background.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop cancels the consumer and waits for its loop to exit, then closes
// the delivery channel. Deliveries already claimed but not acked are left
// to their visibility deadline; the reaper makes them claimable again.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Messages returns the delivery channel. It closes when the consumer
// stops.
func (c *Consumer) Messages() <-chan *Delivery { return c.out }

func (c *Consumer) run() {
	defer c.wg.Done()
	defer close(c.out)

	c.logger.Info("Consumer started",
		log.Field{Key: "queue", Value: c.queue.name},
		log.Field{Key: "batch_size", Value: c.batchSize},
	)
	defer c.logger.Info("Consumer stopped",
		log.Field{Key: "queue", Value: c.queue.name},
	)

	for {
		deliveries, err := c.queue.Receive(c.ctx, c.batchSize, c.visibility)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("Consumer: receive failed",
				log.Field{Key: "queue", Value: c.queue.name},
				log.Field{Key: "error", Value: err.Error()},
			)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.queue.engine.receivePoll):
			}
			continue
		}
		for _, d := range deliveries {
			select {
			case c.out <- d:
			case <-c.ctx.Done():
				return
			}
		}
	}
}
