package stream

import (
	"io"
	"iter"

	sse "github.com/tmaxmax/go-sse"
)

// maxEventSize bounds a single event on the wire.
const maxEventSize = 1 << 20

// Frame is one dispatched server-sent event. Event is empty for the default
// "message" type.
type Frame struct {
	Event string
	ID    string
	Data  string
}

// Reader splits a text/event-stream body into frames.
type Reader struct {
	next func() (sse.Event, error, bool)
	stop func()
}

// NewReader wraps r. Close releases the parser.
func NewReader(r io.Reader) *Reader {
	next, stop := iter.Pull2(sse.Read(r, &sse.ReadConfig{MaxEventSize: maxEventSize}))
	return &Reader{next: next, stop: stop}
}

// Next returns the next complete frame. It returns io.EOF when the body ends;
// a trailing event that was never terminated by a blank line is not a frame.
func (r *Reader) Next() (Frame, error) {
	ev, err, ok := r.next()
	if !ok {
		return Frame{}, io.EOF
	}
	if err != nil {
		r.stop()
		return Frame{}, err
	}
	typ := ev.Type
	if typ == "message" {
		typ = ""
	}
	return Frame{Event: typ, ID: ev.LastEventID, Data: ev.Data}, nil
}

// Close stops reading. It is safe to call more than once.
func (r *Reader) Close() { r.stop() }
