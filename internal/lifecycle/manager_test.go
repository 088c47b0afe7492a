package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

type fakeComponent struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
}

func (f *fakeComponent) Start(context.Context) error {
	f.rec.events = append(f.rec.events, "start:"+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	f.rec.events = append(f.rec.events, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeComponent) Name() string { return f.name }

func TestManager_StartStopOrder(t *testing.T) {
	rec := &recorder{}
	tracing := &fakeComponent{name: "tracing", rec: rec}
	metrics := &fakeComponent{name: "metrics", rec: rec}
	watcher := &fakeComponent{name: "watcher", rec: rec}

	m := NewManager()
	require.NoError(t, m.Register(tracing))
	require.NoError(t, m.Register(metrics, tracing))
	require.NoError(t, m.Register(watcher))

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running(metrics))
	require.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.Running(metrics))

	assert.Equal(t, []string{
		"start:tracing", "start:metrics", "start:watcher",
		"stop:watcher", "stop:metrics", "stop:tracing",
	}, rec.events)
}

func TestManager_RegisterValidation(t *testing.T) {
	rec := &recorder{}
	a := &fakeComponent{name: "a", rec: rec}
	b := &fakeComponent{name: "b", rec: rec}

	m := NewManager()
	assert.Error(t, m.Register(nil))
	assert.Error(t, m.Register(a, b), "dependency must be registered first")
	require.NoError(t, m.Register(a))
	assert.Error(t, m.Register(a), "duplicate registration")
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	ok := &fakeComponent{name: "ok", rec: rec}
	broken := &fakeComponent{name: "broken", rec: rec, startErr: errors.New("port in use")}
	never := &fakeComponent{name: "never", rec: rec}

	m := NewManager()
	require.NoError(t, m.Register(ok))
	require.NoError(t, m.Register(broken))
	require.NoError(t, m.Register(never))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"start:ok", "start:broken", "stop:ok"}, rec.events)
	assert.False(t, m.Running(ok))
}

func TestManager_StopJoinsErrors(t *testing.T) {
	rec := &recorder{}
	a := &fakeComponent{name: "a", rec: rec, stopErr: errors.New("flush failed")}
	b := &fakeComponent{name: "b", rec: rec}

	m := NewManager()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Equal(t, "stop:a", rec.events[len(rec.events)-1], "later components are still stopped")
}
