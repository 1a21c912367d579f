package model

import "time"

// RunOptions holds per-invocation behavior as parsed from flags. Settings
// shared with the config file live in config.Settings.
type RunOptions struct {
	// Timeout bounds the whole job, 0 = none.
	Timeout time.Duration
	// Wait keeps the job attached until playback ends instead of returning
	// as soon as it starts.
	Wait bool
}

// JobSummary is a printable record of one finished job.
type JobSummary struct {
	RequestID string
	BBox      string
	Start     time.Time
	End       time.Time
	Zoom      int
	Workers   int

	Phase    string
	Progress float64
	MediaURL string
	Playback string // playback status, e.g. "playing" or "unavailable"
	Mode     string // none | adaptive | native | direct
	Variant  string // chosen variant resolution, when known
	Reason   string // failure reason
	Elapsed  time.Duration
}
