package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrStream marks transport-level failures; the job cannot continue.
	ErrStream = errors.New("progress stream error")
	// ErrUnexpectedStatus is returned when the backend refuses the stream.
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrNotEventStream is returned when the response is not text/event-stream.
	ErrNotEventStream = errors.New("response is not an event stream")
	// ErrUnexpectedClose is returned when the stream ends before a terminal event.
	ErrUnexpectedClose = errors.New("stream closed before completion")
	// ErrMalformedEvent marks a single unparsable frame; the stream stays open.
	ErrMalformedEvent = errors.New("malformed progress event")
)

// ProgressEvent is one decoded update from the backend.
type ProgressEvent struct {
	Progress float64
	Message  string
	// MediaURL is set only on the terminal success event.
	MediaURL string
}

// Terminal reports whether e ends the job.
func (e ProgressEvent) Terminal() bool {
	return e.MediaURL != ""
}

type wirePayload struct {
	Progress *float64 `json:"progress"`
	Message  string   `json:"message"`
	VideoURL *string  `json:"video_url"`
}

// ParseEvent decodes one frame payload.
func ParseEvent(data []byte) (ProgressEvent, error) {
	var p wirePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ProgressEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if p.Progress == nil {
		return ProgressEvent{}, fmt.Errorf("%w: missing progress", ErrMalformedEvent)
	}
	if *p.Progress < 0 || *p.Progress > 100 {
		return ProgressEvent{}, fmt.Errorf("%w: progress %v outside 0-100", ErrMalformedEvent, *p.Progress)
	}
	ev := ProgressEvent{Progress: *p.Progress, Message: p.Message}
	if p.VideoURL != nil {
		if *p.VideoURL == "" {
			return ProgressEvent{}, fmt.Errorf("%w: empty video_url", ErrMalformedEvent)
		}
		ev.MediaURL = *p.VideoURL
	}
	return ev, nil
}

// Kind tags a Message delivered to a HandlerFunc.
type Kind int

const (
	KindOpened Kind = iota
	KindProgress
	KindTerminal
	KindMalformed
	KindError
)

var kindNames = [...]string{"opened", "progress", "terminal", "malformed", "error"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Message is what a subscription hands to its handler.
type Message struct {
	Kind  Kind
	Event ProgressEvent // set for KindProgress and KindTerminal
	Err   error         // set for KindMalformed and KindError
}

// HandlerFunc receives messages in wire order from the subscription's goroutine.
type HandlerFunc func(Message)
