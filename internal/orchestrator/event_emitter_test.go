package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventEmitter_DeliversInOrder(t *testing.T) {
	e := NewEventEmitter(4, nil)
	e.Emit(OrchestratorEvent{Type: EventRunStarted})
	e.Emit(OrchestratorEvent{Type: EventRunDone})
	e.Close()

	var got []EventType
	for ev := range e.Events() {
		assert.False(t, ev.Timestamp.IsZero())
		got = append(got, ev.Type)
	}
	assert.Equal(t, []EventType{EventRunStarted, EventRunDone}, got)
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1, nil)
	e.Emit(OrchestratorEvent{Type: EventStepStarted})
	e.Emit(OrchestratorEvent{Type: EventStepCompleted})

	assert.Equal(t, uint64(1), e.DroppedCount())
	ev := <-e.Events()
	assert.Equal(t, EventStepStarted, ev.Type)
}

func TestEventEmitter_CloseTwice(t *testing.T) {
	e := NewEventEmitter(1, nil)
	e.Close()
	assert.NotPanics(t, e.Close)
}
