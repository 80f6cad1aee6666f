// Package process blocks the update pipeline while the target program runs.
package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/blackwell-systems/autoupdater/internal/logger"
	"github.com/blackwell-systems/autoupdater/internal/notify"
)

// ErrProcessListUnavailable is returned when running processes cannot be enumerated.
var ErrProcessListUnavailable = errors.New("process list unavailable")

// Lister enumerates the executable names of running processes.
type Lister interface {
	ProcessNames(ctx context.Context) ([]string, error)
}

// SystemLister reads the process table of the local machine.
type SystemLister struct{}

// NewSystemLister returns a Lister backed by the operating system.
func NewSystemLister() SystemLister {
	return SystemLister{}
}

// ProcessNames implements Lister. Processes that exit or deny access while the
// table is being read are skipped.
func (SystemLister) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessListUnavailable, err)
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Present reports whether any name contains target as a substring.
func Present(names []string, target string) bool {
	for _, n := range names {
		if strings.Contains(n, target) {
			return true
		}
	}
	return false
}

// Clock abstracts waiting so tests can drive the gate without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Gate.
type Option func(*Gate)

// WithInterval sets the delay between process list polls.
func WithInterval(d time.Duration) Option {
	return func(g *Gate) { g.interval = d }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithLogger sets the logger used for wait diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// WithEpisodeHook registers a callback invoked once per waiting episode.
func WithEpisodeHook(fn func()) Option {
	return func(g *Gate) { g.onEpisode = fn }
}

// Gate waits for a named process to be absent.
type Gate struct {
	lister    Lister
	notifier  notify.Notifier
	interval  time.Duration
	clock     Clock
	log       zerolog.Logger
	onEpisode func()
}

// NewGate creates a gate polling lister and telling the user through notifier.
func NewGate(lister Lister, notifier notify.Notifier, opts ...Option) *Gate {
	g := &Gate{
		lister:   lister,
		notifier: notifier,
		interval: time.Second,
		clock:    realClock{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WaitUntilAbsent returns once no running process name contains name. The
// first time the process is seen the user is notified, exactly once for the
// whole wait. Errors are ErrProcessListUnavailable or the context error.
func (g *Gate) WaitUntilAbsent(ctx context.Context, name string) error {
	notified := false
	for {
		names, err := g.lister.ProcessNames(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, ErrProcessListUnavailable) {
				err = fmt.Errorf("%w: %v", ErrProcessListUnavailable, err)
			}
			return err
		}

		if !Present(names, name) {
			if notified {
				g.log.Info().Str("process", name).Msg("Process exited, resuming update")
			}
			return nil
		}

		if !notified {
			notified = true
			logger.Warning(g.log).Str("process", name).Msg("Process is running, waiting for it to exit")
			if g.onEpisode != nil {
				g.onEpisode()
			}
			if g.notifier != nil {
				g.notifier.Notify(notify.UpdateWaiting(name))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.clock.After(g.interval):
		}
	}
}
