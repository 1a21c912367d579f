package playback

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// HeadlessSurface accepts any known media type and only records what it was
// asked to play. It backs --no-player runs and tests.
type HeadlessSurface struct {
	logger *slog.Logger

	mu       sync.Mutex
	source   string
	playing  bool
	detaches int
}

func NewHeadlessSurface(logger *slog.Logger) *HeadlessSurface {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HeadlessSurface{logger: logger}
}

func (s *HeadlessSurface) CanPlayType(mimeType string) bool { return mimeType != "" }

func (s *HeadlessSurface) SetSource(src string) error {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
	return nil
}

func (s *HeadlessSurface) Play(ctx context.Context, notify NotifyFunc) error {
	s.mu.Lock()
	s.playing = true
	src := s.source
	s.mu.Unlock()
	s.logger.Info("media ready", "source", src)
	return nil
}

func (s *HeadlessSurface) Detach() {
	s.mu.Lock()
	s.playing = false
	s.detaches++
	s.mu.Unlock()
}

// Source returns the last source set and whether it is playing.
func (s *HeadlessSurface) Source() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source, s.playing
}

func (s *HeadlessSurface) Detaches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detaches
}
