package progress

// Stage identifies a high-level step of a job as seen by an observer.
type Stage string

const (
	StageConnecting Stage = "connecting"
	StageStreaming  Stage = "streaming"
	StageReady      Stage = "ready"
	StagePlaying    Stage = "playing"
	StageCompleted  Stage = "completed"
	StageCancelled  Stage = "cancelled"
	StageError      Stage = "error"
)

// Terminal reports whether no further updates follow for the job.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled || s == StageError
}

// Update conveys progress or stage changes for a job.
type Update struct {
	JobID   string
	Stage   Stage
	Percent float64 // 0..100, or <0 if unknown
	Message string  // short human-friendly status line
}

// Result is emitted once per job when it completes or fails.
type Result struct {
	JobID    string
	MediaURL string
	// Playback is the playback mode used, or "" when media was not shown.
	Playback string
	Err      error // nil on success
}

// Reporter is implemented by UI or any observer interested in progress events.
type Reporter interface {
	Update(u Update)
	Result(r Result)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Update(Update) {}
func (Nop) Result(Result) {}
