package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderForRunFiltersByRunID(t *testing.T) {
	r := NewRecorder()
	r.Record(Event{Kind: EventAssign, RunID: "run-1", Name: "x"})
	r.Record(Event{Kind: EventTool, RunID: "run-2", ToolName: "search"})
	r.Record(Event{Kind: EventFinal, RunID: "run-1", FinalText: "ok"})

	got := r.ForRun("run-1")
	require.Len(t, got, 2)
	assert.Equal(t, EventAssign, got[0].Kind)
	assert.Equal(t, EventFinal, got[1].Kind)
}

func TestRecorderForRunReturnsNilForUnknownRun(t *testing.T) {
	r := NewRecorder()
	r.Record(Event{Kind: EventAssign, RunID: "run-1"})
	assert.Empty(t, r.ForRun("nonexistent"))
}

func TestRecorderAllReturnsEverythingInOrder(t *testing.T) {
	r := NewRecorder()
	r.Record(Event{Kind: EventAssign, RunID: "a"})
	r.Record(Event{Kind: EventTool, RunID: "b"})
	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, EventAssign, all[0].Kind)
	assert.Equal(t, EventTool, all[1].Kind)
}

func TestRecorderAllReturnsACopyNotTheInternalSlice(t *testing.T) {
	r := NewRecorder()
	r.Record(Event{Kind: EventAssign, RunID: "a"})
	out := r.All()
	out[0].RunID = "mutated"
	assert.Equal(t, "a", r.All()[0].RunID)
}

func TestSQLiteStoreRoundTripsEvents(t *testing.T) {
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ts := time.Unix(1700000000, 0).UTC()
	store.Record(Event{Kind: EventTool, RunID: "run-1", ToolName: "search", Timestamp: ts})
	store.Record(Event{Kind: EventFinal, RunID: "run-1", FinalText: "done", Timestamp: ts})
	store.Record(Event{Kind: EventAssign, RunID: "run-2", Timestamp: ts})

	got, err := store.ForRun("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "search", got[0].ToolName)
	assert.Equal(t, "done", got[1].FinalText)
}

func TestSQLiteStoreForRunReturnsEmptyForUnknownRun(t *testing.T) {
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	got, err := store.ForRun("nonexistent")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStoreDefaultsToInMemoryPath(t *testing.T) {
	store, err := OpenSQLiteStore("")
	require.NoError(t, err)
	defer store.Close()
	store.Record(Event{Kind: EventAssign, RunID: "r"})
	got, err := store.ForRun("r")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
