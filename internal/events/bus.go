// Package events is the in-process publish/subscribe bus connecting
// sessions to the API, metrics and log streaming.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish delivers ev to every subscriber of its concrete type.
// Delivery is asynchronous. A nil bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case SessionCreatedEvent:
		event.Publish(b.dispatcher, e)
	case SessionDeletedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case OutputReadyEvent:
		event.Publish(b.dispatcher, e)
	case PipelineErrorEvent:
		event.Publish(b.dispatcher, e)
	case PipelineWarningEvent:
		event.Publish(b.dispatcher, e)
	case FrameStatsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case DefaultsReloadedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for events of type T and returns the
// unsubscribe function.
func Subscribe[T Event](b *Bus, handler func(T)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

// SubscribeToChannel forwards events of type T into ch, dropping them
// when ch is full. SSE handlers select on ch.
func SubscribeToChannel[T Event](b *Bus, ch chan<- any) func() {
	return event.Subscribe(b.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
