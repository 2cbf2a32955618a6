package events

import (
	"context"
	"errors"

	"wasteops/pkg/model"
)

// Publisher delivers lock events to subscribers. Delivery is best effort:
// a failed publish never undoes the registry change that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event model.LockEvent) error
}

type PublisherFunc func(ctx context.Context, event model.LockEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event model.LockEvent) error {
	return f(ctx, event)
}

// Fanout publishes every event to each publisher in order, continuing past failures.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event model.LockEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster is implemented by broadcast.Hub.
type Broadcaster interface {
	Broadcast(v any) error
}

// HubPublisher pushes events to the WebSocket clients connected to this instance.
type HubPublisher struct {
	hub Broadcaster
}

func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, event model.LockEvent) error {
	return p.hub.Broadcast(event)
}
