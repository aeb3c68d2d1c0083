package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/worker"
)

type fakeRecorder struct {
	mu   sync.Mutex
	runs []string
	errs []error
}

func (r *fakeRecorder) ObserveJob(name string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, name)
	r.errs = append(r.errs, err)
}

func TestRegisterValidation(t *testing.T) {
	r := worker.NewRunner()

	assert.Error(t, r.Register(worker.Job{Name: "", Interval: time.Second, Run: func(context.Context) error { return nil }}))
	assert.Error(t, r.Register(worker.Job{Name: "sync", Interval: 0, Run: func(context.Context) error { return nil }}))
	assert.Error(t, r.Register(worker.Job{Name: "sync", Interval: time.Second}))
	assert.NoError(t, r.Register(worker.Job{Name: "sync", Interval: time.Second, Run: func(context.Context) error { return nil }}))
}

func TestJobsRunImmediatelyAndRepeat(t *testing.T) {
	var count atomic.Int32
	r := worker.NewRunner()
	require.NoError(t, r.Register(worker.Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			count.Add(1)
			return nil
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.GreaterOrEqual(t, count.Load(), int32(2))
}

func TestFailingJobDoesNotStopOthers(t *testing.T) {
	recorder := &fakeRecorder{}
	var healthy atomic.Int32

	r := worker.NewRunner(worker.WithRecorder(recorder))
	require.NoError(t, r.Register(worker.Job{
		Name:     "broken",
		Interval: 10 * time.Millisecond,
		Run:      func(context.Context) error { return errors.New("remote unavailable") },
	}))
	require.NoError(t, r.Register(worker.Job{
		Name:     "healthy",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			healthy.Add(1)
			return nil
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.GreaterOrEqual(t, healthy.Load(), int32(2))

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	var brokenErrs int
	for i, name := range recorder.runs {
		if name == "broken" && recorder.errs[i] != nil {
			brokenErrs++
		}
	}
	assert.GreaterOrEqual(t, brokenErrs, 2)
}
