package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sinkEvent struct {
	eventType string
	snapshot  *RunSnapshot
}

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) Publish(eventType string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, _ := payload.(*RunSnapshot)
	s.events = append(s.events, sinkEvent{eventType: eventType, snapshot: snapshot})
}

func (s *recordingSink) Events() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEvent(nil), s.events...)
}

func (s *recordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.eventType
	}
	return types
}

func fetchOnlySteps() []StepInfo {
	return []StepInfo{{ID: StepIDFetch, Name: StepNameFetch}}
}

func TestBroadcasterLifecycleEvents(t *testing.T) {
	sink := &recordingSink{}
	b := NewStatusBroadcaster(sink, testLogger())
	defer b.Stop()

	b.CreateRun("run-1", []string{"solar"}, fetchOnlySteps())
	b.StartRun("run-1")
	b.UpdateStepProgress("run-1", StepIDFetch, 50, "window 1 of 2 fetched")
	b.CompleteStep("run-1", StepIDFetch)
	b.CompleteRun("run-1", "run completed")

	assert.Equal(t, []string{
		EventRunStatus,
		EventRunStatus,
		EventRunProgress,
		EventRunProgress,
		EventRunComplete,
	}, sink.Types())

	snap, err := b.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, []string{"solar"}, snap.Keywords)
	require.NotNil(t, snap.CompletedAt)
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, StepStatusCompleted, snap.Steps[0].Status)
}

func TestBroadcasterAggregatesProgressAcrossSteps(t *testing.T) {
	sink := &recordingSink{}
	b := NewStatusBroadcaster(sink, testLogger())
	defer b.Stop()

	steps := []StepInfo{
		{ID: StepIDFetch, Name: StepNameFetch},
		{ID: StepIDExport, Name: StepNameExport},
	}
	b.CreateRun("run-1", []string{"solar"}, steps)
	b.CompleteStep("run-1", StepIDFetch)

	snap, err := b.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, 50, snap.Progress)

	// a skipped step counts as finished work
	b.SkipStep("run-1", StepIDExport, "upstream failed")
	snap, err = b.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Progress)
}

func TestBroadcasterProgressIsMonotonic(t *testing.T) {
	sink := &recordingSink{}
	b := NewStatusBroadcaster(sink, testLogger())
	defer b.Stop()

	b.CreateRun("run-1", []string{"solar"}, fetchOnlySteps())
	b.UpdateStepProgress("run-1", StepIDFetch, 60, "ahead")
	b.UpdateStepProgress("run-1", StepIDFetch, 30, "late event")

	snap, err := b.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, 60, snap.Steps[0].Progress)
	assert.Equal(t, "late event", snap.Steps[0].Message)
}

func TestBroadcasterFailurePath(t *testing.T) {
	sink := &recordingSink{}
	b := NewStatusBroadcaster(sink, testLogger())
	defer b.Stop()

	b.CreateRun("run-1", []string{"solar"}, fetchOnlySteps())
	b.StartRun("run-1")
	b.FailStep("run-1", StepIDFetch, errors.New("quota exhausted"))
	b.FailRun("run-1", errors.New("quota exhausted"))

	snap, err := b.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, snap.Status)
	assert.Equal(t, "quota exhausted", snap.Error)
	assert.Equal(t, StepStatusFailed, snap.Steps[0].Status)
	assert.Equal(t, "quota exhausted", snap.Steps[0].Error)
	require.NotNil(t, snap.CompletedAt)

	types := sink.Types()
	assert.Equal(t, EventRunError, types[len(types)-1])
}

func TestBroadcasterDropsUpdatesForUnknownRuns(t *testing.T) {
	sink := &recordingSink{}
	b := NewStatusBroadcaster(sink, testLogger())
	defer b.Stop()

	b.UpdateStepProgress("ghost", StepIDFetch, 10, "nothing")

	assert.Empty(t, sink.Events())
	_, err := b.GetSnapshot("ghost")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestBroadcasterSnapshotsAreCopies(t *testing.T) {
	sink := &recordingSink{}
	b := NewStatusBroadcaster(sink, testLogger())
	defer b.Stop()

	b.CreateRun("run-1", []string{"solar"}, fetchOnlySteps())

	first, err := b.GetSnapshot("run-1")
	require.NoError(t, err)
	first.Steps[0].Progress = 99
	first.Keywords[0] = "mutated"

	second, err := b.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Steps[0].Progress)
	assert.Equal(t, "solar", second.Keywords[0])
}

func TestBroadcasterCleanupOldRuns(t *testing.T) {
	sink := &recordingSink{}
	b := NewStatusBroadcaster(sink, testLogger())
	defer b.Stop()

	b.CreateRun("done", []string{"solar"}, fetchOnlySteps())
	b.CompleteRun("done", "")
	b.CreateRun("live", []string{"wind"}, fetchOnlySteps())
	b.StartRun("live")

	time.Sleep(20 * time.Millisecond)
	removed := b.CleanupOldRuns(time.Millisecond)

	assert.Equal(t, 1, removed)
	_, err := b.GetSnapshot("done")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = b.GetSnapshot("live")
	assert.NoError(t, err)

	all := b.GetAllSnapshots()
	require.Len(t, all, 1)
	assert.Equal(t, "live", all[0].RunID)
}

func TestBroadcasterStopIsIdempotent(t *testing.T) {
	b := NewStatusBroadcaster(nil, testLogger())
	b.CreateRun("run-1", []string{"solar"}, fetchOnlySteps())

	b.Stop()
	b.Stop()
}
