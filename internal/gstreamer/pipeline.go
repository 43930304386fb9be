package gstreamer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/gstgraph/internal/media"
)

// Pipeline wraps a realized gst.Pipeline.
type Pipeline struct {
	pipeline *gst.Pipeline
	bus      *gst.Bus

	mu     sync.Mutex
	closed bool
}

var gstStates = map[media.State]gst.State{
	media.StateNull:    gst.StateNull,
	media.StateReady:   gst.StateReady,
	media.StatePaused:  gst.StatePaused,
	media.StatePlaying: gst.StatePlaying,
}

func (p *Pipeline) SetState(s media.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return media.ErrClosed
	}
	target, ok := gstStates[s]
	if !ok {
		return fmt.Errorf("unsupported state %s", s)
	}
	if err := p.pipeline.SetState(target); err != nil {
		return fmt.Errorf("set state %s: %w", s, err)
	}
	return nil
}

func (p *Pipeline) SendEOS() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return media.ErrClosed
	}
	if !p.pipeline.SendEvent(gst.NewEOSEvent()) {
		return errors.New("pipeline rejected EOS event")
	}
	return nil
}

func (p *Pipeline) Pop(timeout time.Duration) media.BusEvent {
	msg := p.bus.TimedPop(timeout)
	if msg == nil {
		return nil
	}
	return translate(msg)
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("set state NULL: %w", err)
	}
	return nil
}

var mediaStates = map[gst.State]media.State{
	gst.StateNull:    media.StateNull,
	gst.StateReady:   media.StateReady,
	gst.StatePaused:  media.StatePaused,
	gst.StatePlaying: media.StatePlaying,
}

// translate maps a bus message to a media.BusEvent. Message types the
// session does not react to come back as nil. Unmapped states read as
// StateVoidPending.
func translate(msg *gst.Message) media.BusEvent {
	switch msg.Type() {
	case gst.MessageEOS:
		return media.EndOfStream{}
	case gst.MessageError:
		gerr := msg.ParseError()
		if gerr == nil {
			return media.Error{Source: msg.Source(), Message: "unknown error", Category: media.CategoryUnknown}
		}
		return media.Error{
			Source:   msg.Source(),
			Message:  gerr.Error(),
			Debug:    gerr.DebugString(),
			Category: media.Classify(gerr.Error(), gerr.DebugString()),
		}
	case gst.MessageWarning:
		ev := media.Warning{Source: msg.Source()}
		if gerr := msg.ParseWarning(); gerr != nil {
			ev.Message, ev.Debug = gerr.Error(), gerr.DebugString()
		}
		return ev
	case gst.MessageStateChanged:
		old, next := msg.ParseStateChanged()
		return media.StateChanged{Source: msg.Source(), Old: mediaStates[old], New: mediaStates[next]}
	case gst.MessageTag:
		return media.Tag{Source: msg.Source(), Tags: tagMap(msg.ParseTags())}
	}
	return nil
}

// tagMap flattens the first value of every tag to a string.
func tagMap(tl *gst.TagList) map[string]string {
	if tl == nil || tl.IsEmpty() {
		return nil
	}
	tags := make(map[string]string)
	tl.ForEach(func(_ *gst.TagList, tag gst.Tag) {
		if v := tl.GetValueIndex(tag, 0); v != nil {
			tags[string(tag)] = fmt.Sprint(v)
		}
	})
	return tags
}
