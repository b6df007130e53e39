package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_PreservesEmissionOrder(t *testing.T) {
	s := NewStream()

	const n = 200 // well past the channel buffer
	done := make(chan []Event)
	go func() {
		var got []Event
		for ev := range s.Events() {
			got = append(got, ev)
		}
		done <- got
	}()

	for i := 0; i < n; i++ {
		s.Emit(EventStepResultChunk, ChunkPayload{Delta: fmt.Sprintf("chunk-%d", i)})
	}
	s.Emit(EventTaskComplete, TaskCompletePayload{Success: true})
	s.Close()

	got := <-done
	require.Len(t, got, n+1)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), got[i].Data.(ChunkPayload).Delta)
	}
	assert.Equal(t, EventTaskComplete, got[n].Name)
	assert.True(t, got[n].IsTerminal())
}

func TestStream_EmitAfterCloseIsNoop(t *testing.T) {
	s := NewStream()
	s.Close()

	assert.NotPanics(t, func() {
		s.Emit(EventStepComplete, StepCompletePayload{Step: 1})
	})

	_, open := <-s.Events()
	assert.False(t, open)
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	s := NewStream()
	s.Close()
	assert.NotPanics(t, s.Close)
}

func TestEvent_IsTerminal(t *testing.T) {
	assert.True(t, Event{Name: EventTaskComplete}.IsTerminal())
	assert.True(t, Event{Name: EventTaskError}.IsTerminal())
	assert.False(t, Event{Name: EventStepComplete}.IsTerminal())
	assert.False(t, Event{Name: EventSummaryChunk}.IsTerminal())
}
