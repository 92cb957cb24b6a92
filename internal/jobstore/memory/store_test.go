package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finbrand/logo-crawler/internal/logo"
)

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	job := logo.Job{
		ID:      "job-1",
		Status:  logo.JobStatusRunning,
		Total:   3,
		Started: time.Now().UTC(),
		Errors:  []string{},
	}
	require.NoError(t, store.CreateJob(ctx, job))

	job.Completed = 3
	job.Succeeded = 2
	job.Failed = 1
	job.Status = logo.JobStatusCompleted
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, logo.JobStatusCompleted, got.Status)
	require.Equal(t, 2, got.Succeeded)
}

func TestGetJob_NotFound(t *testing.T) {
	t.Parallel()

	_, err := NewStore().GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, logo.ErrNotFound)
}

func TestGetJob_ReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, logo.Job{ID: "job-1", Errors: []string{"a"}}))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	got.Errors[0] = "mutated"

	again, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, again.Errors)
}
