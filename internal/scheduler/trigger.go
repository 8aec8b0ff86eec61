package scheduler

import (
	"strconv"
	"time"

	"luascript-server/internal/logger"
)

// TimeTrigger fires at a fixed wall-clock hour and minute. The configured
// hour (setHour) is kept separate from the UTC-normalized hour used for
// bucket matching; the latter is re-derived on every recalculation so that
// timezone and DST changes are picked up.
type TimeTrigger struct {
	manager  *Manager
	settings Settings
	callback func(ctx map[string]string)
	now      func() time.Time

	// reg is the value registered in the manager's index: the outermost
	// trigger when this struct is embedded.
	reg Trigger

	timezone string
	minute   int
	hour     int
	setHour  int
	active   bool

	hasMinute bool
	hasHour   bool
}

// NewTimeTrigger creates a time trigger. It registers itself with the
// manager once both hour and minute parameters have been parsed.
func NewTimeTrigger(manager *Manager, settings Settings, callback func(ctx map[string]string)) *TimeTrigger {
	t := &TimeTrigger{
		manager:  manager,
		settings: settings,
		callback: callback,
		now:      time.Now,
		timezone: settings.Get("tz", "UTC"),
		hour:     -1,
		active:   true,
	}
	t.reg = t
	return t
}

// Minute returns the scheduled minute of the hour
func (t *TimeTrigger) Minute() int { return t.minute }

// Hour returns the UTC-normalized hour, or -1 for "every hour"
func (t *TimeTrigger) Hour() int { return t.hour }

// Active reports whether the trigger may fire
func (t *TimeTrigger) Active() bool { return t.active }

// Fire invokes the rule-engine callback
func (t *TimeTrigger) Fire(ctx map[string]string) {
	if t.callback != nil {
		t.callback(ctx)
	}
}

// Close removes the trigger from the manager
func (t *TimeTrigger) Close() {
	t.manager.Delete(t.reg)
}

// ParseParam consumes one named parameter. A value that fails to parse is
// ignored, leaving the trigger unregistered.
func (t *TimeTrigger) ParseParam(name, value string) {
	switch name {
	case "minute":
		v, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		t.minute = v
		t.hasMinute = true
	case "hour":
		v, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		t.setHour = v
		t.hasHour = true
		if v == -1 {
			t.hour = -1
		} else {
			t.hour = t.utcHourFor(v)
		}
	}
	if t.hasHour && t.hasMinute {
		t.manager.Add(t.reg)
	}
}

// Recalculate re-derives the UTC hour from the configured local hour.
// Returns true when the hour changed and the trigger needs no relocation
// (the minute is unchanged for plain time triggers, but subtypes reuse
// this through their own recalculation).
func (t *TimeTrigger) Recalculate() bool {
	if t.setHour == -1 {
		return false
	}
	t.timezone = t.settings.Get("tz", "UTC")
	previous := t.hour
	t.hour = t.utcHourFor(t.setHour)
	return previous != t.hour
}

// utcHourFor converts a local wall-clock hour to the UTC hour of its next
// occurrence. When today's UTC hour has already elapsed the anchor date is
// advanced one day before localizing, a best-effort heuristic around DST
// transitions.
func (t *TimeTrigger) utcHourFor(setHour int) int {
	loc := t.location()
	now := t.now().UTC()

	local := time.Date(now.Year(), now.Month(), now.Day(), setHour, 0, 0, 0, loc)
	utcHour := local.UTC().Hour()
	if now.Hour() > utcHour {
		next := now.AddDate(0, 0, 1)
		local = time.Date(next.Year(), next.Month(), next.Day(), setHour, 0, 0, 0, loc)
		utcHour = local.UTC().Hour()
	}
	return utcHour
}

func (t *TimeTrigger) location() *time.Location {
	loc, err := time.LoadLocation(t.timezone)
	if err != nil {
		logger.Warn("Unknown timezone %q, falling back to UTC", t.timezone)
		return time.UTC
	}
	return loc
}
