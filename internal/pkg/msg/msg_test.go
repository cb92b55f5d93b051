package msg

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

func TestSubscribe(t *testing.T) {
	pidPub, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub1, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub2, err := uuid.NewUUID()
	assert.NilError(t, err)

	pubsub := NewPublisher(pidPub)
	ch1, err := pubsub.Subscribe(pidSub1, Report)
	assert.NilError(t, err)
	ch2, err := pubsub.Subscribe(pidSub2, Report)
	assert.NilError(t, err)

	randValue := rand.Float64()

	wg := &sync.WaitGroup{}
	received := make([]interface{}, 2)
	for i, ch := range []<-chan Msg{ch1, ch2} {
		wg.Add(1)
		go func(i int, ch <-chan Msg) {
			defer wg.Done()
			incoming := <-ch
			assert.Equal(t, incoming.PID(), pidPub)
			assert.Equal(t, incoming.Topic(), Report)
			received[i] = incoming.Payload()
		}(i, ch)
	}

	dropped := pubsub.Publish(Report, randValue)
	wg.Wait()

	assert.Equal(t, dropped, 0)
	assert.Equal(t, received[0], randValue, "first subscriber did not receive the published value")
	assert.Equal(t, received[1], randValue, "second subscriber did not receive the published value")
}

func TestSubscribeTopics(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	pid := uuid.New()

	stages, _ := pubsub.Subscribe(pid, Stage)
	again, _ := pubsub.Subscribe(pid, Stage)
	assert.Equal(t, stages, again)

	pubsub.Publish(Report, "ignored")
	pubsub.Publish(Stage, "built")

	m := <-stages
	assert.Equal(t, m.Payload(), "built")
	assert.Equal(t, len(stages), 0)
}

func TestUnsubscribe(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	pid := uuid.New()

	ch, _ := pubsub.Subscribe(pid, Stage)
	pubsub.Unsubscribe(pid)

	_, ok := <-ch
	assert.Assert(t, !ok)
	assert.Equal(t, pubsub.Publish(Stage, 1), 0)
}

func TestPublishNonBlocking(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	ch, _ := pubsub.Subscribe(uuid.New(), Stage)

	dropped := 0
	for i := 0; i < InboxSize+10; i++ {
		dropped += pubsub.Publish(Stage, i)
	}
	if dropped != 10 {
		t.Errorf("Publish(): FAILED. %d dropped != 10", dropped)
	} else {
		t.Logf("Publish(): PASSED. %d dropped == 10", dropped)
	}
	assert.Equal(t, len(ch), InboxSize)
}

func TestClose(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	ch, _ := pubsub.Subscribe(uuid.New(), Report)

	pubsub.Close()
	pubsub.Close()

	_, ok := <-ch
	assert.Assert(t, !ok)

	_, err := pubsub.Subscribe(uuid.New(), Report)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, pubsub.Publish(Report, 1), 0)
}

func TestTopicString(t *testing.T) {
	assert.Equal(t, Stage.String(), "stage")
	assert.Equal(t, Topic(9).String(), "unknown")
}
