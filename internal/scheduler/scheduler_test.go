package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tbourn/consult-booking/internal/config"
	"github.com/tbourn/consult-booking/internal/services"
)

type countingRunner struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (r *countingRunner) Run(_ context.Context, name string) (services.SweepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[name]++
	return services.SweepResult{Processed: 1, Sent: 1}, r.err
}

func (r *countingRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func TestScheduler_RunsEachJobUntilCanceled(t *testing.T) {
	r := &countingRunner{}
	s := New(r,
		Job{Sweep: services.SweepAbandoned, Interval: 5 * time.Millisecond},
		Job{Sweep: services.SweepReminders, Interval: 5 * time.Millisecond},
		Job{Sweep: services.SweepIncomplete, Interval: 0},
	)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		return r.count(services.SweepAbandoned) >= 3 && r.count(services.SweepReminders) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, r.count(services.SweepIncomplete), "disabled job never runs")
}

func TestScheduler_FailuresDoNotStopTheLoop(t *testing.T) {
	r := &countingRunner{err: errors.New("db down")}
	s := New(r, Job{Sweep: services.SweepIncomplete, Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	assert.Eventually(t, func() bool { return r.count(services.SweepIncomplete) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

func TestJobsFromConfig(t *testing.T) {
	jobs := JobsFromConfig(config.SweepConfig{
		AbandonedInterval:  time.Hour,
		IncompleteInterval: 30 * time.Minute,
		ReminderInterval:   15 * time.Minute,
	})
	assert.Equal(t, []Job{
		{Sweep: services.SweepAbandoned, Interval: time.Hour},
		{Sweep: services.SweepIncomplete, Interval: 30 * time.Minute},
		{Sweep: services.SweepReminders, Interval: 15 * time.Minute},
	}, jobs)
}
