package job

import (
	"context"

	"cloudweave/internal/playback"
	"cloudweave/internal/request"
	"cloudweave/internal/stream"
)

// Subscription is the live side of a stream the machine can cancel.
type Subscription interface {
	Cancel()
}

// Streamer opens progress streams.
type Streamer interface {
	Start(ctx context.Context, req request.JobRequest, handle stream.HandlerFunc) Subscription
}

// StreamerFunc adapts a function to Streamer.
type StreamerFunc func(ctx context.Context, req request.JobRequest, handle stream.HandlerFunc) Subscription

func (f StreamerFunc) Start(ctx context.Context, req request.JobRequest, handle stream.HandlerFunc) Subscription {
	return f(ctx, req, handle)
}

// PlaybackHandle is an attachment the machine releases when it leaves Ready.
type PlaybackHandle interface {
	Release()
	Mode() playback.Mode
}

// Attacher binds media to a surface.
type Attacher interface {
	Attach(ctx context.Context, mediaURL string, surface playback.Surface, notify playback.NotifyFunc) (PlaybackHandle, error)
}

// AttacherFunc adapts a function to Attacher.
type AttacherFunc func(ctx context.Context, mediaURL string, surface playback.Surface, notify playback.NotifyFunc) (PlaybackHandle, error)

func (f AttacherFunc) Attach(ctx context.Context, mediaURL string, surface playback.Surface, notify playback.NotifyFunc) (PlaybackHandle, error) {
	return f(ctx, mediaURL, surface, notify)
}

// FromClient adapts a stream client.
func FromClient(c *stream.Client) Streamer {
	return StreamerFunc(func(ctx context.Context, req request.JobRequest, handle stream.HandlerFunc) Subscription {
		return c.Start(ctx, req, handle)
	})
}

// FromAttacher adapts a playback attacher.
func FromAttacher(a *playback.Attacher) Attacher {
	return AttacherFunc(func(ctx context.Context, mediaURL string, surface playback.Surface, notify playback.NotifyFunc) (PlaybackHandle, error) {
		h, err := a.Attach(ctx, mediaURL, surface, notify)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}
