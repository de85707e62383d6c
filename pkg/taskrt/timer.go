package taskrt

import (
	"context"
	"time"
)

// Timer schedules a one-shot Task onto a Runtime's topic worker, used
// by the producer queue's retry/backoff loop.
type Timer struct {
	t      *time.Timer
	stopCh chan struct{}
}

// AfterFunc submits fn to topic's worker after d elapses. Unlike
// time.AfterFunc, fn runs on the Runtime's worker pool rather than its
// own goroutine, so it's serialized with every other task on topic.
func (rt *Runtime) AfterFunc(ctx context.Context, d time.Duration, topic string, fn Task) *Timer {
	timer := &Timer{stopCh: make(chan struct{})}
	timer.t = time.AfterFunc(d, func() {
		select {
		case <-timer.stopCh:
			return
		default:
		}
		rt.Submit(ctx, topic, fn)
	})
	return timer
}

// Stop cancels the timer if it hasn't fired yet. It returns false if
// the timer already fired or was already stopped.
func (t *Timer) Stop() bool {
	select {
	case <-t.stopCh:
		return false
	default:
		close(t.stopCh)
	}
	return t.t.Stop()
}

// Ticker submits fn to topic's worker every d until Stop is called.
type Ticker struct {
	ticker *time.Ticker
	stopCh chan struct{}
}

// NewTicker starts a repeating submission of fn to topic every d.
func (rt *Runtime) NewTicker(ctx context.Context, d time.Duration, topic string, fn Task) *Ticker {
	tk := &Ticker{ticker: time.NewTicker(d), stopCh: make(chan struct{})}
	go func() {
		for {
			select {
			case <-tk.ticker.C:
				rt.Submit(ctx, topic, fn)
			case <-tk.stopCh:
				return
			}
		}
	}()
	return tk
}

// Stop ends the ticker's submissions.
func (tk *Ticker) Stop() {
	tk.ticker.Stop()
	close(tk.stopCh)
}
