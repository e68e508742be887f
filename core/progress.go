package core

import "context"

// Milestone glyphs shown to the UI. Done marks a completed step, Skipped a
// step whose work was already available.
const (
	GlyphDone    = "✅"
	GlyphSkipped = "⏭️"
)

type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventMilestone EventKind = "milestone"
	EventDone      EventKind = "done"
	EventError     EventKind = "error"
)

// Event is one unit of the pipeline's progress protocol: either a fractional
// progress value within the current stage, a discrete milestone message, or
// the terminal result/error of the whole run.
type Event struct {
	Kind     EventKind `json:"kind"`
	Fraction float64   `json:"fraction,omitempty"`
	Message  string    `json:"message,omitempty"`
	Result   string    `json:"result,omitempty"`
}

// Reporter receives progress from a running stage. Implementations may
// block; stages treat a blocked report as cooperative suspension.
type Reporter interface {
	Progress(fraction float64)
	Milestone(message string)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) Progress(float64) {}
func (NopReporter) Milestone(string) {}

// ChanReporter forwards events one at a time over an unbuffered channel so
// the producer never runs ahead of the consumer. Sends abort when the
// context is cancelled.
type ChanReporter struct {
	Ctx context.Context
	C   chan<- Event
}

func (r ChanReporter) Progress(fraction float64) {
	r.send(Event{Kind: EventProgress, Fraction: fraction})
}

func (r ChanReporter) Milestone(message string) {
	r.send(Event{Kind: EventMilestone, Message: message})
}

func (r ChanReporter) send(ev Event) {
	select {
	case r.C <- ev:
	case <-r.Ctx.Done():
	}
}
