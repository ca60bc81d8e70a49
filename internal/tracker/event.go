package tracker

import "time"

// Event represents a state change or progress update for one transfer.
// Terminal events settle the repository record; progress events carry the
// relay's current byte cursor.
type Event struct {
	TransferID string    `json:"transferId"`
	Type       EventType `json:"type"`
	Provider   string    `json:"provider,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

type EventType string

const (
	EventStart    EventType = "Start"
	EventProgress EventType = "Progress"
	EventComplete EventType = "Complete"
	EventFailed   EventType = "Failed"
)

// Reporter publishes transfer events.
type Reporter interface {
	Report(Event)
}

// ChanReporter writes events to a channel.
type ChanReporter struct {
	ch chan<- Event
}

func NewChanReporter(ch chan<- Event) *ChanReporter { return &ChanReporter{ch: ch} }

func (r *ChanReporter) Report(e Event) {
	if r == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.ch <- e
}
