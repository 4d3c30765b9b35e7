package message

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dimed/hisris/internal/platform/hl7v2"
)

// Consumer is the phase-2 side of the inbound pipeline: a fixed pool of
// workers draining the frame queue the MLLP server feeds. Channel delivery
// guarantees each dequeued frame reaches exactly one worker; slow ledger
// writes here never delay the ACK already sent in phase 1.
type Consumer struct {
	svc     *Service
	queue   <-chan hl7v2.InboundFrame
	workers int
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewConsumer(svc *Service, queue <-chan hl7v2.InboundFrame, workers int, logger zerolog.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		svc:     svc,
		queue:   queue,
		workers: workers,
		logger:  logger.With().Str("component", "hl7_consumer").Logger(),
	}
}

// Start launches the worker pool. Workers exit when the queue is closed or
// the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.run(ctx, i)
	}
	c.logger.Info().Int("workers", c.workers).Msg("inbound consumers started")
}

// Wait blocks until all workers have exited.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.queue:
			if !ok {
				return
			}
			if err := c.svc.HandleInbound(ctx, frame); err != nil {
				c.logger.Error().Err(err).
					Int("worker", id).
					Str("control_id", frame.ControlID).
					Msg("inbound message processing failed")
			}
		}
	}
}
