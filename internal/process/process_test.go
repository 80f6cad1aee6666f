package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/autoupdater/internal/notify"
)

// scriptedLister returns one snapshot per call, repeating the last one.
type scriptedLister struct {
	snapshots [][]string
	errs      []error
	calls     int
}

func (s *scriptedLister) ProcessNames(context.Context) ([]string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.snapshots) {
		i = len(s.snapshots) - 1
	}
	return s.snapshots[i], nil
}

// instantClock fires immediately and counts waits.
type instantClock struct{ waits int }

func (c *instantClock) After(time.Duration) <-chan time.Time {
	c.waits++
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func collect() (*[]notify.Message, notify.Notifier) {
	var got []notify.Message
	return &got, notify.Func(func(m notify.Message) { got = append(got, m) })
}

func TestWaitUntilAbsent_NotRunning(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]string{{"init", "sshd"}}}
	clock := &instantClock{}
	msgs, n := collect()

	err := NewGate(lister, n, WithClock(clock)).WaitUntilAbsent(context.Background(), "app.exe")
	require.NoError(t, err)
	assert.Empty(t, *msgs)
	assert.Equal(t, 0, clock.waits)
	assert.Equal(t, 1, lister.calls)
}

func TestWaitUntilAbsent_NotifiesOncePerEpisode(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]string{
		{"app.exe"},
		{"app.exe", "other"},
		{"app.exe"},
		{"other"},
	}}
	clock := &instantClock{}
	msgs, n := collect()
	episodes := 0

	gate := NewGate(lister, n, WithClock(clock), WithEpisodeHook(func() { episodes++ }))
	require.NoError(t, gate.WaitUntilAbsent(context.Background(), "app.exe"))

	require.Len(t, *msgs, 1)
	assert.Equal(t, notify.UpdateWaiting("app.exe"), (*msgs)[0])
	assert.Equal(t, 1, episodes)
	assert.Equal(t, 3, clock.waits)
	assert.Equal(t, 4, lister.calls)
}

func TestWaitUntilAbsent_SubstringMatch(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]string{{"myapp.exe.bak"}, {}}}
	msgs, n := collect()

	require.NoError(t, NewGate(lister, n, WithClock(&instantClock{})).WaitUntilAbsent(context.Background(), "app.exe"))
	assert.Len(t, *msgs, 1)
}

func TestWaitUntilAbsent_ListFailure(t *testing.T) {
	lister := &scriptedLister{errs: []error{errors.New("access denied")}}

	err := NewGate(lister, nil, WithClock(&instantClock{})).WaitUntilAbsent(context.Background(), "app.exe")
	assert.ErrorIs(t, err, ErrProcessListUnavailable)
}

func TestWaitUntilAbsent_ContextCancelled(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]string{{"app.exe"}}}
	ctx, cancel := context.WithCancel(context.Background())

	notifier := notify.Func(func(notify.Message) { cancel() })
	// The real clock with a long interval never fires before cancellation.
	gate := NewGate(lister, notifier, WithInterval(time.Hour))

	err := gate.WaitUntilAbsent(ctx, "app.exe")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPresent(t *testing.T) {
	assert.True(t, Present([]string{"a", "xapp.exey"}, "app.exe"))
	assert.False(t, Present([]string{"App.exe"}, "app.exe"))
	assert.False(t, Present(nil, "app.exe"))
}

func TestSystemLister_SeesSomething(t *testing.T) {
	names, err := NewSystemLister().ProcessNames(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}
