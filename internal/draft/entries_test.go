package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lubereport/internal/domain"
)

func TestReduceEntriesUpdateKeepsUntouchedRows(t *testing.T) {
	state := []*domain.AnomalyEntry{
		{Machine: "A", Images: []string{}},
		{Machine: "B", Images: []string{}},
		{Machine: "C", Images: []string{}},
	}
	next := ReduceEntries(state, EntryAction{Type: ActionUpdate, Index: 1, Field: FieldComment, Value: "fuite"})

	require.Len(t, next, 3)
	assert.Same(t, state[0], next[0])
	assert.Same(t, state[2], next[2])
	assert.NotSame(t, state[1], next[1])
	assert.Equal(t, "fuite", next[1].Comment)
	assert.Equal(t, "", state[1].Comment, "previous state must not change")
}

func TestReduceEntriesAddAndOutOfTour(t *testing.T) {
	state := InitialEntries()
	state = ReduceEntries(state, EntryAction{Type: ActionAdd})
	state = ReduceEntries(state, EntryAction{Type: ActionAddOutOfTour})

	require.Len(t, state, 3)
	assert.False(t, state[1].OutOfTour)
	assert.True(t, state[2].OutOfTour)
	assert.NotNil(t, state[2].Images)
}

func TestReduceEntriesRemove(t *testing.T) {
	state := []*domain.AnomalyEntry{{Machine: "A"}, {Machine: "B"}}
	next := ReduceEntries(state, EntryAction{Type: ActionRemove, Index: 0})
	require.Len(t, next, 1)
	assert.Equal(t, "B", next[0].Machine)
	assert.Len(t, state, 2)
}

func TestReduceEntriesInitAndReset(t *testing.T) {
	payload := []*domain.AnomalyEntry{{Machine: "X", Comment: "y"}}
	state := ReduceEntries(InitialEntries(), EntryAction{Type: ActionInit, Payload: payload})
	assert.Equal(t, payload, state)

	state = ReduceEntries(state, EntryAction{Type: ActionReset})
	require.Len(t, state, 1)
	assert.Equal(t, domain.AnomalyEntry{Images: []string{}}, *state[0])
}

func TestReduceEntriesIgnoresBadUpdates(t *testing.T) {
	state := InitialEntries()
	cases := []EntryAction{
		{Type: ActionUpdate, Index: 0, Field: FieldComment, Value: 12},
		{Type: ActionUpdate, Index: 0, Field: "nope", Value: "x"},
		{Type: ActionUpdate, Index: 0, Field: FieldOutOfTour, Value: "true"},
		{Type: "BOGUS"},
	}
	for _, a := range cases {
		next := ReduceEntries(state, a)
		assert.Equal(t, state, next, "action %+v", a)
	}

	next := ReduceEntries(state, EntryAction{Type: ActionUpdate, Index: 5, Field: FieldComment, Value: "x"})
	require.Len(t, next, 1)
	assert.Same(t, state[0], next[0])
}

func TestReduceSafety(t *testing.T) {
	state := InitialSafety()
	require.NotNil(t, state)
	assert.Empty(t, state)

	state = ReduceSafety(state, SafetyAction{Type: ActionAdd})
	state = ReduceSafety(state, SafetyAction{Type: ActionAdd})
	first := state[0]
	state = ReduceSafety(state, SafetyAction{Type: ActionUpdate, Index: 1, Field: FieldType, Value: "EPI"})
	assert.Same(t, first, state[0])
	assert.Equal(t, "EPI", state[1].Type)

	same := ReduceSafety(state, SafetyAction{Type: ActionAddOutOfTour})
	assert.Equal(t, state, same)

	state = ReduceSafety(state, SafetyAction{Type: ActionRemove, Index: 0})
	require.Len(t, state, 1)
	assert.Equal(t, "EPI", state[0].Type)

	state = ReduceSafety(state, SafetyAction{Type: ActionReset})
	assert.NotNil(t, state)
	assert.Empty(t, state)
}
