package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasaforge/forge/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestQueue(store *memStore) *QueueEngine {
	return NewQueueEngine(testLogger(), store, Keyspace{})
}

func sitePayload(userID string) domain.JobPayload {
	return domain.JobPayload{
		Kind:       domain.JobKindGenerateSite,
		UserID:     userID,
		ProviderID: domain.ProviderOpenAI,
		Prompt:     `{"title":"Padaria do Bairro","prompt":"site para padaria"}`,
		SiteID:     "site-1",
	}
}

func TestEnqueue_PersistsEnvelopeAndIndexesPending(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)

	loaded, err := queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Payload, loaded.Payload)

	score, ok := store.zscore(Keyspace{}.Pending(), job.ID)
	require.True(t, ok)
	assert.Equal(t, float64(job.ScheduledAt), score)
}

func TestEnqueue_HonorsExplicitIDAndMaxAttempts(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)

	job, err := queue.Enqueue(context.Background(), sitePayload("user-1"), EnqueueOptions{
		ID:          "job-42",
		MaxAttempts: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "job-42", job.ID)
	assert.Equal(t, 5, job.MaxAttempts)
}

func TestClaimNext_ReturnsEarliestDueJob(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	now := time.Now()
	queue.now = func() time.Time { return now }

	_, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "later", Delay: -time.Minute})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "earlier", Delay: -2 * time.Minute})
	require.NoError(t, err)

	claimed, err := queue.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	assert.Equal(t, "earlier", claimed.ID)
	assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	// The claimed job moved from the pending index to processing.
	_, stillPending := store.zscore(Keyspace{}.Pending(), "earlier")
	assert.False(t, stillPending)
	_, inProcessing := store.zscore(Keyspace{}.Processing(), "earlier")
	assert.True(t, inProcessing)
}

func TestClaimNext_EmptyQueueReturnsNil(t *testing.T) {
	queue := newTestQueue(newMemStore())

	job, err := queue.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNext_FutureHeadBlocksLaterDueJobs(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	now := time.Now()
	queue.now = func() time.Time { return now }

	// The earliest-scheduled job is not yet due. Only the head is
	// considered, so nothing is claimable.
	_, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "future", Delay: time.Hour})
	require.NoError(t, err)

	job, err := queue.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	_, stillPending := store.zscore(Keyspace{}.Pending(), "future")
	assert.True(t, stillPending)
}

func TestClaimNext_PrunesOrphanedIndexEntry(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	// Index entry without an envelope record.
	require.NoError(t, store.ZAdd(ctx, Keyspace{}.Pending(), 0, "ghost"))

	job, err := queue.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	_, stillThere := store.zscore(Keyspace{}.Pending(), "ghost")
	assert.False(t, stillThere)
}

func TestComplete_StoresResultAndClearsProcessing(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	queue.now = func() time.Time { return time.Now() }
	_, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "job-1", Delay: -time.Second})
	require.NoError(t, err)
	claimed, err := queue.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	result := &domain.JobResult{Kind: domain.JobKindGenerateSite, SiteID: "site-1", CostCredits: 10}
	require.NoError(t, queue.Complete(ctx, "job-1", result))

	job, err := queue.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "site-1", job.Result.SiteID)

	assert.Equal(t, 0, store.zcard(Keyspace{}.Processing()))
	assert.Equal(t, 0, store.zcard(Keyspace{}.Pending()))
}

func TestRetry_RevivesWithExponentialBackoff(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	now := time.Now()
	queue.now = func() time.Time { return now }

	_, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "job-1", Delay: -time.Second})
	require.NoError(t, err)
	claimed, err := queue.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, claimed.Attempts)

	require.NoError(t, queue.Retry(ctx, "job-1"))

	job, err := queue.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, now.Add(2*time.Second).UnixMilli(), job.ScheduledAt)

	score, ok := store.zscore(Keyspace{}.Pending(), "job-1")
	require.True(t, ok)
	assert.Equal(t, float64(job.ScheduledAt), score)
	assert.Equal(t, 0, store.zcard(Keyspace{}.Processing()))
}

func TestRetry_ExhaustedAttemptsIsTerminal(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	now := time.Now()
	queue.now = func() time.Time { return now }

	_, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "job-1", Delay: -time.Hour})
	require.NoError(t, err)

	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		claimed, err := queue.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d should be claimable", attempt)
		require.Equal(t, attempt, claimed.Attempts)

		require.NoError(t, queue.ReportFailure(ctx, "job-1", errors.New("provider timeout")))

		// Make the retried job immediately due again.
		now = now.Add(2 * time.Minute)
	}

	job, err := queue.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "provider timeout", job.LastError)
	assert.Equal(t, domain.FailureTransient, job.FailureCode)

	// Terminal jobs sit in neither index.
	assert.Equal(t, 0, store.zcard(Keyspace{}.Pending()))
	assert.Equal(t, 0, store.zcard(Keyspace{}.Processing()))

	claimed, err := queue.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestReportFailure_ClassifiesInsufficientCredits(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	queue.now = func() time.Time { return time.Now() }
	_, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "job-1", Delay: -time.Second})
	require.NoError(t, err)
	_, err = queue.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.ReportFailure(ctx, "job-1", domain.ErrInsufficientCredits))

	job, err := queue.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureInsufficientCredits, job.FailureCode)
	// First failure of three attempts: revived, not terminal.
	assert.Equal(t, domain.JobStatusPending, job.Status)
}

func TestPruneStaleProcessing_RevivesAbandonedJobs(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	now := time.Now()
	queue.now = func() time.Time { return now }

	_, err := queue.Enqueue(ctx, sitePayload("user-1"), EnqueueOptions{ID: "stuck", Delay: -time.Second})
	require.NoError(t, err)
	_, err = queue.ClaimNext(ctx)
	require.NoError(t, err)

	// Fresh claims are left alone.
	require.NoError(t, queue.PruneStaleProcessing(ctx, 5*time.Minute))
	_, inProcessing := store.zscore(Keyspace{}.Processing(), "stuck")
	assert.True(t, inProcessing)

	// Past the staleness horizon the job goes back to pending.
	now = now.Add(10 * time.Minute)
	require.NoError(t, queue.PruneStaleProcessing(ctx, 5*time.Minute))

	job, err := queue.GetJob(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	_, inProcessing = store.zscore(Keyspace{}.Processing(), "stuck")
	assert.False(t, inProcessing)
	_, inPending := store.zscore(Keyspace{}.Pending(), "stuck")
	assert.True(t, inPending)
}

func TestPruneStaleProcessing_DropsOrphanedEntries(t *testing.T) {
	store := newMemStore()
	queue := newTestQueue(store)
	ctx := context.Background()

	require.NoError(t, store.ZAdd(ctx, Keyspace{}.Processing(), 0, "ghost"))
	require.NoError(t, queue.PruneStaleProcessing(ctx, time.Minute))

	assert.Equal(t, 0, store.zcard(Keyspace{}.Processing()))
}

func TestGetJob_MissingReturnsNotFound(t *testing.T) {
	queue := newTestQueue(newMemStore())

	_, err := queue.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestBackoffForAttempt(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{10, 60 * time.Second},
		{-1, 1 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BackoffForAttempt(tc.attempts), "attempts=%d", tc.attempts)
	}
}

func TestKeyspace_PrefixIsolatesKeys(t *testing.T) {
	keys := Keyspace{Prefix: "staging:"}
	assert.Equal(t, "staging:queue:pending", keys.Pending())
	assert.Equal(t, "staging:queue:processing", keys.Processing())
	assert.Equal(t, "staging:queue:job:abc", keys.Job("abc"))
}
