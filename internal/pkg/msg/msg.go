// Package msg is the in-process event bus of a planning run.
package msg

import "github.com/google/uuid"

// Topic selects a class of messages.
type Topic int

const (
	// Stage messages carry a StageEvent for each pipeline transition.
	Stage Topic = iota
	// Report messages carry the finished analysis.Report.
	Report
)

func (t Topic) String() string {
	switch t {
	case Stage:
		return "stage"
	case Report:
		return "report"
	default:
		return "unknown"
	}
}

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a payload tagged with its sender and topic.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}
