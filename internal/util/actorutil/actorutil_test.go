package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedState string

func (s namedState) Name() string            { return string(s) }
func (s namedState) Receive(_ actor.Context) {}

func TestActorWithStatesTracksName(t *testing.T) {

	s := ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal(t, "", s.StateName())

	s.Become(namedState("starting"))
	assert.Equal(t, "starting", s.StateName())

	s.Become(namedState("running"))
	s.BecomeStacked(namedState("waiting"))
	assert.Equal(t, "waiting", s.StateName())

	s.UnbecomeStacked()
	assert.Equal(t, "running", s.StateName())
}

type taskResult struct {
	Value int
	Err   error
}

type taskRunner struct {
	build func(ctx actor.Context) *SafeBackgroundTask[taskResult]
	out   chan taskResult
}

func (p *taskRunner) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case string:
		if msg == "run" {
			p.build(ctx).PipeTo(ctx.Self())
		}
	case taskResult:
		p.out <- msg
	}
}

func runTask(t *testing.T, build func(ctx actor.Context) *SafeBackgroundTask[taskResult]) taskResult {
	t.Helper()
	as := actor.NewActorSystem()
	defer as.Shutdown()
	runner := &taskRunner{build: build, out: make(chan taskResult, 1)}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return runner }))
	as.Root.Send(pid, "run")
	select {
	case r := <-runner.out:
		return r
	case <-time.After(3 * time.Second):
		require.FailNow(t, "task did not complete")
	}
	return taskResult{}
}

func TestBackgroundTaskSuccess(t *testing.T) {

	r := runTask(t, func(ctx actor.Context) *SafeBackgroundTask[taskResult] {
		return NewBackgroundTask(ctx, func() (*taskResult, error) {
			return &taskResult{Value: 42}, nil
		})
	})
	assert.Equal(t, 42, r.Value)
}

func TestBackgroundTaskRecoverOnTimeout(t *testing.T) {

	r := runTask(t, func(ctx actor.Context) *SafeBackgroundTask[taskResult] {
		return NewBackgroundTask(ctx, func() (*taskResult, error) {
			time.Sleep(time.Second)
			return &taskResult{Value: 1}, nil
		}).WithTimeout(50 * time.Millisecond).Recover(func(err error) taskResult {
			return taskResult{Err: err}
		})
	})
	assert.Error(t, r.Err)
	assert.Zero(t, r.Value)
}

func TestBackgroundTaskRecoverOnError(t *testing.T) {

	boom := errors.New("boom")
	r := runTask(t, func(ctx actor.Context) *SafeBackgroundTask[taskResult] {
		return NewBackgroundTask(ctx, func() (*taskResult, error) {
			return nil, boom
		}).Recover(func(err error) taskResult {
			return taskResult{Err: err}
		})
	})
	assert.ErrorContains(t, r.Err, boom.Error())
}
