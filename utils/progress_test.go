package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTrackerCreatesBarsWhenStarted(t *testing.T) {
	p := NewProgressTracker()
	p.Start()
	defer p.Stop()

	p.AddTask("modules", 8)
	require.Len(t, p.bars, 1, "a started tracker must create a bar per task")

	p.IncrementTask("modules", 3)
	p.CompleteTask("modules")
	assert.Empty(t, p.bars, "completed tasks are removed")
}

func TestProgressTrackerIgnoresTasksBeforeStart(t *testing.T) {
	p := NewProgressTracker()

	p.AddTask("modules", 8)
	assert.Empty(t, p.bars)

	// No-ops rather than panics for tasks that were never tracked.
	p.IncrementTask("modules", 1)
	p.CompleteTask("modules")
}

func TestProgressTrackerStopClearsBars(t *testing.T) {
	p := NewProgressTracker()
	p.Start()

	p.AddTask("crawl", 10)
	p.AddTask("modules", 4)
	require.Len(t, p.bars, 2)

	p.Stop()
	assert.Empty(t, p.bars)

	p.AddTask("late", 1)
	assert.Empty(t, p.bars, "a stopped tracker accepts no new tasks")
}
