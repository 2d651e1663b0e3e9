package async

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jterrors "github.com/trailhq/jobtrail/errors"
	jttesting "github.com/trailhq/jobtrail/internal/testing"
)

func TestNewJobDefaults(t *testing.T) {
	job, err := NewJob("remind.process", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, DefaultJobTTL, job.TTL)
	assert.NotEmpty(t, job.ID)
	assert.Nil(t, job.StartedAt)

	_, err = NewJob("", nil, 0)
	assert.Error(t, err)
}

func TestJobStateTransitions(t *testing.T) {
	job, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)

	job.Start()
	assert.Equal(t, JobStatusActive, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Complete()
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)

	failed, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	failed.Start()
	failed.Fail(jterrors.New("boom"))
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}

func TestJobAbandoned(t *testing.T) {
	job, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)

	now := time.Now()
	assert.False(t, job.Abandoned(now), "pending jobs are never abandoned")

	job.Start()
	assert.False(t, job.Abandoned(now))
	assert.True(t, job.Abandoned(now.Add(2*time.Minute)))

	job.Requeue()
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.False(t, job.Abandoned(now.Add(2*time.Minute)))
}

func TestStoreRoundTrip(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	store := NewStore(conn)

	payload := json.RawMessage(`{"batch_size":100}`)
	job, err := NewJob("remind.process", payload, 5*time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.HandlerName, got.HandlerName)
	assert.JSONEq(t, string(payload), string(got.Payload))
	assert.Equal(t, 5*time.Minute, got.TTL)
	assert.Equal(t, JobStatusPending, got.Status)

	got.Start()
	require.NoError(t, store.UpdateJob(got))
	got, err = store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusActive, got.Status)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, store.DeleteJob(job.ID))
	_, err = store.GetJob(job.ID)
	assert.True(t, jterrors.IsNotFoundError(err))

	// Deleting again is a no-op, not an error.
	assert.NoError(t, store.DeleteJob(job.ID))
}

func TestQueueDequeueOrderAndEmpty(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)

	job, err := queue.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, job, "empty queue returns nil, nil")

	first, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	first.CreatedAt = first.CreatedAt.Add(-time.Second)
	require.NoError(t, queue.Enqueue(first))

	second, err := NewJob("other.handler", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(second))

	got, err := queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID, "oldest job dequeues first")
	assert.Equal(t, JobStatusActive, got.Status)
}

func TestQueueSingleFlightHandler(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)
	queue.RestrictConcurrency("remind.process")

	first, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(first))

	// A second job for the restricted handler is refused while the first
	// is pending.
	dup, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	err = queue.Enqueue(dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, jterrors.ErrConflict)

	// Still refused while it is active.
	active, err := queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, active)
	err = queue.Enqueue(dup)
	assert.ErrorIs(t, err, jterrors.ErrConflict)

	// Unrestricted handlers are unaffected.
	other, err := NewJob("other.handler", nil, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, queue.Enqueue(other))

	// Completion clears the slot.
	require.NoError(t, queue.Complete(active))
	assert.NoError(t, queue.Enqueue(dup))
}

func TestQueueCompletionDeletesRow(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)

	job, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(job))

	active, err := queue.Dequeue()
	require.NoError(t, err)
	require.NoError(t, queue.Complete(active))

	_, err = queue.store.GetJob(job.ID)
	assert.True(t, jterrors.IsNotFoundError(err), "completed jobs leave no row behind")

	stats, err := queue.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Active)
}

func TestQueueFailureDeletesRow(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)

	job, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(job))

	active, err := queue.Dequeue()
	require.NoError(t, err)
	require.NoError(t, queue.Fail(active, jterrors.New("handler exploded")))

	_, err = queue.store.GetJob(job.ID)
	assert.True(t, jterrors.IsNotFoundError(err), "failed jobs leave no row behind")
}

func TestReapAbandonedRequeues(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)

	job, err := NewJob("remind.process", nil, time.Second)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(job))

	active, err := queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, active)

	// Backdate the start so the TTL has elapsed.
	past := time.Now().Add(-time.Minute)
	active.StartedAt = &past
	require.NoError(t, queue.store.UpdateJob(active))

	requeued, err := queue.ReapAbandoned()
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	got, err := queue.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)

	// A fresh active job within its TTL is left alone.
	again, err := queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, again)
	requeued, err = queue.ReapAbandoned()
	require.NoError(t, err)
	assert.Zero(t, requeued)
}

func TestQueueSubscriberObservesLifecycle(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)
	ch := queue.Subscribe()

	job, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(job))

	got := <-ch
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobStatusPending, got.Status)

	active, err := queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, active)
	got = <-ch
	assert.Equal(t, JobStatusActive, got.Status)

	require.NoError(t, queue.Complete(active))
	got = <-ch
	assert.Equal(t, JobStatusCompleted, got.Status, "completion is observable even though the row is gone")
	require.NotNil(t, got.CompletedAt)
}

func TestQueueSubscriberObservesFailure(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)
	ch := queue.Subscribe()

	job, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(job))
	<-ch // pending

	active, err := queue.Dequeue()
	require.NoError(t, err)
	<-ch // active

	require.NoError(t, queue.Fail(active, jterrors.New("sender exploded")))
	got := <-ch
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "sender exploded", got.Error)
}

func TestQueueUnsubscribeStopsNotifications(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	queue := NewQueue(conn, nil)
	ch := queue.Subscribe()
	queue.Unsubscribe(ch)

	job, err := NewJob("remind.process", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(job))

	assert.Empty(t, ch, "unsubscribed channel receives nothing")
}
