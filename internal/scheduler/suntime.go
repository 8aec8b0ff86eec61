package scheduler

import (
	"strconv"
	"time"
)

// SuntimeTrigger fires at sunrise or sunset plus a signed offset. The
// scheduling key always reflects the UTC time of the next event; when no
// event occurs today or tomorrow the trigger goes inactive but keeps its
// key for later recalculation.
type SuntimeTrigger struct {
	TimeTrigger

	sun       RiseSetSource
	sunStatus int // 1 = sunrise, 0 = sunset
	offset    int // minutes, signed
	latitude  string
	longitude string

	hasStatus bool
	hasOffset bool
}

// NewSuntimeTrigger creates a sunrise/sunset trigger
func NewSuntimeTrigger(manager *Manager, settings Settings, sun RiseSetSource, callback func(ctx map[string]string)) *SuntimeTrigger {
	t := &SuntimeTrigger{
		TimeTrigger: *NewTimeTrigger(manager, settings, callback),
		sun:         sun,
		latitude:    settings.Get("latitude", "55.699592"),
		longitude:   settings.Get("longitude", "13.187836"),
	}
	t.reg = t
	return t
}

// ParseParam consumes one named parameter. The trigger registers itself
// once both sunStatus and offset are known.
func (t *SuntimeTrigger) ParseParam(name, value string) {
	switch name {
	case "sunStatus":
		v, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		t.sunStatus = v
		t.hasStatus = true
	case "offset":
		v, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		t.offset = v
		t.hasOffset = true
	}
	if t.hasStatus && t.hasOffset {
		t.Recalculate()
		t.manager.Add(t.reg)
	}
}

// Recalculate re-derives (hour, minute, active) from the next sunrise or
// sunset. Returns true when any of the three changed.
func (t *SuntimeTrigger) Recalculate() bool {
	t.latitude = t.settings.Get("latitude", "55.699592")
	t.longitude = t.settings.Get("longitude", "13.187836")
	lat, _ := strconv.ParseFloat(t.latitude, 64)
	lon, _ := strconv.ParseFloat(t.longitude, 64)

	now := t.now().UTC()
	riseSet := t.sun.NextRiseSet(now.Unix(), lat, lon)

	runTime := riseSet.Sunrise
	if t.sunStatus == 0 {
		runTime = riseSet.Sunset
	}
	if runTime == 0 {
		// the event never happens at this latitude right now
		return t.deactivate()
	}

	runTime += int64(t.offset) * 60
	utc := time.Unix(runTime, 0).UTC()

	tomorrow := now.AddDate(0, 0, 1)
	if !sameDay(utc, now) && !sameDay(utc, tomorrow) {
		// no sunrise/sunset today or tomorrow
		return t.deactivate()
	}

	if t.minute == utc.Minute() && t.hour == utc.Hour() && t.active {
		return false
	}
	t.active = true
	t.minute = utc.Minute()
	t.hour = utc.Hour()
	t.hasMinute = true
	t.hasHour = true
	return true
}

func (t *SuntimeTrigger) deactivate() bool {
	if t.active {
		t.active = false
		return true
	}
	return false
}

func sameDay(a, b time.Time) bool {
	return a.Day() == b.Day() && a.Month() == b.Month()
}
