// Package eventloop runs callbacks one at a time on a single goroutine.
// Timers fire by posting onto the same queue, so a slow callback delays the
// ones behind it instead of overlapping them.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/logging"
)

type Scheduler interface {
	RunAfter(delay time.Duration, fn func()) Timer
	RunEvery(interval time.Duration, fn func() bool) Timer
	Post(fn func())
}

type Timer interface {
	Stop()
}

type Loop struct {
	logger logging.Logger

	queue chan func()
	quit  chan struct{}
	once  sync.Once
}

func New(logger logging.Logger) *Loop {
	return &Loop{
		logger: logger,
		queue:  make(chan func(), 64),
		quit:   make(chan struct{}),
	}
}

// Post queues fn. Calls after Quit are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.quit:
	}
}

// Run executes queued callbacks until ctx is done or Quit is called.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Debugf("Event loop running")
	defer l.logger.Debugf("Event loop stopped")
	defer l.Quit()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

func (l *Loop) Quit() {
	l.once.Do(func() {
		close(l.quit)
	})
}

// RunAfter calls fn once on the loop after delay.
func (l *Loop) RunAfter(delay time.Duration, fn func()) Timer {
	t := &timer{}

	t.mutex.Lock()
	t.timer = time.AfterFunc(delay, func() {
		l.Post(func() {
			if !t.stopped() {
				fn()
			}
		})
	})
	t.mutex.Unlock()
	return t
}

// RunEvery calls fn on the loop every interval until fn returns false or the
// timer is stopped. The next period starts when fn returns.
func (l *Loop) RunEvery(interval time.Duration, fn func() bool) Timer {
	t := &timer{}

	var tick func()
	tick = func() {
		l.Post(func() {
			if t.stopped() {
				return
			}
			if !fn() {
				t.Stop()
				return
			}
			t.reset(interval, tick)
		})
	}

	t.mutex.Lock()
	t.timer = time.AfterFunc(interval, tick)
	t.mutex.Unlock()
	return t
}

type timer struct {
	mutex sync.Mutex
	timer *time.Timer
	stop  bool
}

func (t *timer) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.stop = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *timer) stopped() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stop
}

func (t *timer) reset(interval time.Duration, tick func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.stop {
		t.timer = time.AfterFunc(interval, tick)
	}
}
