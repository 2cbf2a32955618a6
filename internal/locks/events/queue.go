package events

import (
	"context"
	"errors"

	"wasteops/pkg/logger"
	"wasteops/pkg/model"
)

var ErrQueueFull = errors.New("lock event queue is full")

type queuedEvent struct {
	ctx   context.Context
	event model.LockEvent
}

// Queue hands events to a slow publisher, such as Kafka, from a single
// goroutine. Publish never blocks and events keep the order they were queued in.
type Queue struct {
	next   Publisher
	events chan queuedEvent
	log    *logger.Logger
}

func NewQueue(next Publisher, size int, log *logger.Logger) *Queue {
	return &Queue{
		next:   next,
		events: make(chan queuedEvent, size),
		log:    log,
	}
}

// Publish queues event. The request's values travel with it but its
// cancellation does not.
func (q *Queue) Publish(ctx context.Context, event model.LockEvent) error {
	select {
	case q.events <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// already queued.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case item := <-q.events:
			q.deliver(item)
		case <-ctx.Done():
			for {
				select {
				case item := <-q.events:
					q.deliver(item)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(item queuedEvent) {
	if err := q.next.Publish(item.ctx, item.event); err != nil {
		q.log.Warn("failed to deliver queued lock event",
			"event", item.event.Name,
			"resource_type", item.event.Payload.ResourceType,
			"id", item.event.Payload.ID,
			"error", err,
		)
	}
}
