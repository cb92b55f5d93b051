package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned when subscribing to a closed publisher.
var ErrClosed = errors.New("msg: publisher closed")

// InboxSize is the buffer of every subscription channel.
const InboxSize = 50

// PubSub fans published messages out to the subscribers of each topic.
// Sends never block: a subscriber with a full inbox misses the message.
type PubSub struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	subs   map[Topic]map[uuid.UUID]chan Msg
	closed bool
}

// NewPublisher returns a PubSub that publishes as pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:  &sync.Mutex{},
		pid:  pid,
		subs: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID of the publisher
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel on which the specified topic is broadcast. A
// second subscription of the same pid to a topic returns the first channel.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.subs[topic] == nil {
		p.subs[topic] = make(map[uuid.UUID]chan Msg)
	}
	if ch, ok := p.subs[topic][pid]; ok {
		return ch, nil
	}
	ch := make(chan Msg, InboxSize)
	p.subs[topic][pid] = ch
	return ch, nil
}

// Unsubscribe pid from all topic broadcasts and close its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subs {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish sends payload on topic as this publisher. It returns the number
// of subscribers that missed the message.
func (p *PubSub) Publish(topic Topic, payload interface{}) int {
	return p.Forward(New(p.pid, topic, payload))
}

// Forward sends m unchanged to the subscribers of its topic.
func (p *PubSub) Forward(m Msg) int {
	p.mux.Lock()
	defer p.mux.Unlock()
	dropped := 0
	for _, ch := range p.subs[m.Topic()] {
		select {
		case ch <- m:
		default:
			dropped++
		}
	}
	return dropped
}

// Close unsubscribes everyone. Later publishes are discarded.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for topic, subs := range p.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subs, topic)
	}
}
