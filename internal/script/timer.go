package script

import "time"

// sleepTimer parks a sleeping routine until its delay elapses. Timers are
// value-like records; they reach the worker only through its task queue.
type sleepTimer struct {
	delay time.Duration
	timer *time.Timer
}

func newSleepTimer(delay time.Duration) *sleepTimer {
	return &sleepTimer{delay: delay}
}

func (t *sleepTimer) start(fn func()) {
	t.timer = time.AfterFunc(t.delay, fn)
}

// abort cancels the timer. A callback that already fired observes the
// routine's generation and drops itself.
func (t *sleepTimer) abort() {
	if t.timer != nil {
		t.timer.Stop()
	}
}
