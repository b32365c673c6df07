package pipeline

import "time"

// Stage describes a high-level merge phase.
type Stage string

const (
	// StageHeaders is the header parsing stage.
	StageHeaders Stage = "headers"
	// StageCompose is the declaration composing stage.
	StageCompose Stage = "compose"
	// StageSections is the out-of-order section discovery stage.
	StageSections Stage = "sections"
	// StageMerge is the body merging stage.
	StageMerge Stage = "merge"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the input is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the input is currently being processed.
	StatusWorking Status = "working"
	// StatusDone indicates the input is done.
	StatusDone Status = "done"
	// StatusError indicates the input encountered an error.
	StatusError Status = "error"
)

// Event reports progress for an input (or for the whole merge when File is
// empty). Done and Total count bytes when Total is positive.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Done    int64
	Total   int64
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// FuncSink adapts a function to ProgressSink.
type FuncSink func(Event)

func (f FuncSink) OnEvent(evt Event) {
	if f != nil {
		f(evt)
	}
}
