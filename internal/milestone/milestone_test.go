package milestone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thresholdsOf(events []Event) []int {
	var out []int
	for _, e := range events {
		if e.Kind == KindMilestone {
			out = append(out, e.ThresholdHours)
		}
	}
	return out
}

func TestEvaluate_FiresEachThresholdOnce(t *testing.T) {
	e := New(24)

	var all []Event
	for h := 0; h <= 12; h++ {
		all = append(all, e.Evaluate(h)...)
		// Submitting the same value twice must not duplicate.
		all = append(all, e.Evaluate(h)...)
	}

	assert.Equal(t, []int{6, 12}, thresholdsOf(all))
	assert.Len(t, all, 2)
	assert.Equal(t, []int{6, 12}, e.Fired())
}

func TestEvaluate_JumpFiresInAscendingOrder(t *testing.T) {
	e := New(72)

	events := e.Evaluate(20)

	assert.Equal(t, []int{6, 12, 16, 18}, thresholdsOf(events))
	assert.Empty(t, e.Evaluate(20))
}

func TestEvaluate_GoalReachedOnce(t *testing.T) {
	e := New(16)

	events := e.Evaluate(16)
	require.Len(t, events, 4)
	last := events[len(events)-1]
	assert.Equal(t, KindGoalReached, last.Kind)
	assert.Equal(t, 16.0, last.TargetHours)
	assert.True(t, e.GoalReached())

	for _, ev := range e.Evaluate(17) {
		assert.NotEqual(t, KindGoalReached, ev.Kind)
	}
}

func TestEvaluate_FractionalTarget(t *testing.T) {
	e := New(16.5)

	assert.Equal(t, []int{6, 12, 16}, thresholdsOf(e.Evaluate(16)))
	assert.False(t, e.GoalReached())

	events := e.Evaluate(17)
	require.Len(t, events, 1)
	assert.Equal(t, KindGoalReached, events[0].Kind)
	assert.Contains(t, events[0].Payload.Body, "16.5")
}

func TestReset_AllowsNewFastToFireAgain(t *testing.T) {
	e := New(12)
	e.Evaluate(13)
	require.True(t, e.GoalReached())

	e.Reset(24)
	assert.Empty(t, e.Fired())
	assert.False(t, e.GoalReached())
	assert.Equal(t, 24.0, e.Target())

	assert.Equal(t, []int{6}, thresholdsOf(e.Evaluate(7)))
}

func TestPrime_SuppressesPastEvents(t *testing.T) {
	e := New(16)
	e.Prime(13)

	assert.Empty(t, e.Evaluate(13))

	events := e.Evaluate(16)
	assert.Equal(t, []int{16}, thresholdsOf(events))
	assert.True(t, e.GoalReached())
}

func TestPayloadUsesPhaseTitles(t *testing.T) {
	e := New(100)
	events := e.Evaluate(24)

	byHour := map[int]Payload{}
	for _, ev := range events {
		byHour[ev.ThresholdHours] = ev.Payload
	}
	assert.Equal(t, "12h: Ketosis start", byHour[12].Title)
	assert.Equal(t, "16 hours fasted", byHour[16].Title)
}

func TestCustomThresholdsAreSorted(t *testing.T) {
	e := New(10, 8, 2, 4)
	assert.Equal(t, []int{2, 4}, thresholdsOf(e.Evaluate(5)))
}
