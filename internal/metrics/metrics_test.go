package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.TaskSubmitted()
	c.TaskSubmitted()
	c.TaskCompleted(100 * time.Millisecond)
	c.TaskFailed()
	c.TaskSkipped()
	c.TaskRetried()

	snapshot := c.Snapshot()
	assert.Equal(t, int64(2), snapshot.TotalTasks)
	assert.Equal(t, int64(1), snapshot.CompletedTasks)
	assert.Equal(t, int64(1), snapshot.FailedTasks)
	assert.Equal(t, int64(1), snapshot.SkippedTasks)
	assert.Equal(t, int64(1), snapshot.RetriedTasks)
	assert.False(t, snapshot.LastUpdated.IsZero())
}

func TestCollector_IncrementalAverage(t *testing.T) {
	c := NewCollector()

	c.TaskCompleted(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, c.Snapshot().AverageProcessingTime)

	c.TaskCompleted(300 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, c.Snapshot().AverageProcessingTime)

	c.TaskCompleted(200 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, c.Snapshot().AverageProcessingTime)
}

func TestCollector_ErrorRate(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 0.0, c.Snapshot().ErrorRate)

	c.TaskCompleted(time.Millisecond)
	c.TaskCompleted(time.Millisecond)
	c.TaskCompleted(time.Millisecond)
	c.TaskFailed()

	assert.Equal(t, 25.0, c.Snapshot().ErrorRate)

	// Skipped tasks do not count towards the error rate
	c.TaskSkipped()
	assert.Equal(t, 25.0, c.Snapshot().ErrorRate)
}

func TestCollector_Throughput(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 5; i++ {
		c.TaskCompleted(time.Millisecond)
	}

	assert.Equal(t, 5.0, c.Snapshot().ThroughputPerMinute)
}

func TestCollector_QueueStats(t *testing.T) {
	c := NewCollector()

	c.UpdateQueueStats(QueueStats{RegularSize: 7, PrioritySize: 2, ActiveWorkers: 4})

	snapshot := c.Snapshot()
	assert.Equal(t, 7, snapshot.QueueSize)
	assert.Equal(t, 2, snapshot.PriorityQueueSize)
	assert.Equal(t, 4, snapshot.ActiveWorkers)
}

func TestCollector_Polling(t *testing.T) {
	c := NewCollector()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.StartPolling(ctx, func() QueueStats {
		return QueueStats{RegularSize: 3, PrioritySize: 1, ActiveWorkers: 2}
	}, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		snapshot := c.Snapshot()
		return snapshot.QueueSize == 3 && snapshot.ActiveWorkers == 2
	}, time.Second, 5*time.Millisecond)
}

func TestCollector_SnapshotIsCopy(t *testing.T) {
	c := NewCollector()
	c.TaskSubmitted()

	snapshot := c.Snapshot()
	snapshot.TotalTasks = 99

	assert.Equal(t, int64(1), c.Snapshot().TotalTasks)
}

func TestCollector_ConcurrentUpdates(t *testing.T) {
	c := NewCollector()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.TaskSubmitted()
				c.TaskCompleted(time.Millisecond)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	snapshot := c.Snapshot()
	assert.Equal(t, int64(1000), snapshot.TotalTasks)
	assert.Equal(t, int64(1000), snapshot.CompletedTasks)
}
