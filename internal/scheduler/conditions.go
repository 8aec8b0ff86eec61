package scheduler

import (
	"strconv"
	"strings"
	"time"

	"luascript-server/internal/logger"
)

// TimeCondition matches when the local time of day falls inside a
// configured interval. An interval whose start is later than its end wraps
// past midnight.
type TimeCondition struct {
	settings Settings
	now      func() time.Time
	timezone string

	fromHour   int
	fromMinute int
	toHour     int
	toMinute   int

	hasFromHour   bool
	hasFromMinute bool
	hasToHour     bool
	hasToMinute   bool
}

// NewTimeCondition creates a time-of-day condition
func NewTimeCondition(settings Settings) *TimeCondition {
	return &TimeCondition{
		settings: settings,
		now:      time.Now,
		timezone: settings.Get("tz", "UTC"),
	}
}

// ParseParam consumes one named parameter
func (c *TimeCondition) ParseParam(name, value string) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return
	}
	switch name {
	case "fromHour":
		c.fromHour = v
		c.hasFromHour = true
	case "fromMinute":
		c.fromMinute = v
		c.hasFromMinute = true
	case "toHour":
		c.toHour = v
		c.hasToHour = true
	case "toMinute":
		c.toMinute = v
		c.hasToMinute = true
	}
}

// Validate invokes success when the current local time is inside the
// interval, failure otherwise or when parameters are incomplete
func (c *TimeCondition) Validate(success, failure func()) {
	if !c.hasFromHour || !c.hasFromMinute || !c.hasToHour || !c.hasToMinute {
		failure()
		return
	}

	local := c.now().In(locationOrUTC(c.timezone))
	current := local.Hour()*60 + local.Minute()
	from := c.fromHour*60 + c.fromMinute
	to := c.toHour*60 + c.toMinute

	if from <= to {
		if current >= from && current <= to {
			success()
		} else {
			failure()
		}
		return
	}
	// interval wraps past midnight
	if current >= from || current <= to {
		success()
	} else {
		failure()
	}
}

// WeekdayCondition matches on the local weekday, Monday=1 through Sunday=7.
type WeekdayCondition struct {
	settings Settings
	now      func() time.Time
	timezone string

	weekdays    string
	hasWeekdays bool
}

// NewWeekdayCondition creates a weekday condition
func NewWeekdayCondition(settings Settings) *WeekdayCondition {
	return &WeekdayCondition{
		settings: settings,
		now:      time.Now,
		timezone: settings.Get("tz", "UTC"),
	}
}

// ParseParam consumes one named parameter
func (c *WeekdayCondition) ParseParam(name, value string) {
	if name == "weekdays" {
		c.weekdays = value
		c.hasWeekdays = true
	}
}

// Validate invokes success when the current local weekday is among the
// accepted digits
func (c *WeekdayCondition) Validate(success, failure func()) {
	if !c.hasWeekdays {
		failure()
		return
	}

	local := c.now().In(locationOrUTC(c.timezone))
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	if strings.Contains(c.weekdays, strconv.Itoa(weekday)) {
		success()
	} else {
		failure()
	}
}

// SuntimeCondition matches on the current day/night status, with per-side
// offsets applied to sunrise and sunset. When neither event occurs today
// the status is inferred from whether the next event is a rise (polar
// night) or a set (polar day).
type SuntimeCondition struct {
	settings Settings
	sun      RiseSetSource
	now      func() time.Time

	sunStatus     int // 1 = day, 0 = night
	sunriseOffset int
	sunsetOffset  int
	latitude      string
	longitude     string

	hasStatus        bool
	hasSunriseOffset bool
	hasSunsetOffset  bool
}

// NewSuntimeCondition creates a day/night condition
func NewSuntimeCondition(settings Settings, sun RiseSetSource) *SuntimeCondition {
	return &SuntimeCondition{
		settings:  settings,
		sun:       sun,
		now:       time.Now,
		latitude:  settings.Get("latitude", "55.699592"),
		longitude: settings.Get("longitude", "13.187836"),
	}
}

// ParseParam consumes one named parameter
func (c *SuntimeCondition) ParseParam(name, value string) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return
	}
	switch name {
	case "sunStatus":
		c.sunStatus = v
		c.hasStatus = true
	case "sunriseOffset":
		c.sunriseOffset = v
		c.hasSunriseOffset = true
	case "sunsetOffset":
		c.sunsetOffset = v
		c.hasSunsetOffset = true
	}
}

// Validate invokes success when the configured sun status matches the
// current one
func (c *SuntimeCondition) Validate(success, failure func()) {
	if !c.hasStatus || !c.hasSunriseOffset || !c.hasSunsetOffset {
		failure()
		return
	}

	lat, _ := strconv.ParseFloat(c.latitude, 64)
	lon, _ := strconv.ParseFloat(c.longitude, 64)
	nowEpoch := c.now().UTC().Unix()

	currentStatus := 1
	today := c.sun.Riseset(nowEpoch, lat, lon)

	var sunRise, sunSet int64
	if today.Sunrise != 0 {
		sunRise = today.Sunrise + int64(c.sunriseOffset)*60
	}
	if today.Sunset != 0 {
		sunSet = today.Sunset + int64(c.sunsetOffset)*60
	}

	if sunRise != 0 || sunSet != 0 {
		if (sunRise != 0 && nowEpoch < sunRise) || (sunSet != 0 && nowEpoch > sunSet) {
			currentStatus = 0
		}
	} else {
		// no sunrise or sunset today, is it winter or summer?
		next := c.sun.NextRiseSet(nowEpoch, lat, lon)
		if next.Sunrise < next.Sunset {
			// next event is a sunrise, it is dark now
			if nowEpoch < next.Sunrise+int64(c.sunriseOffset)*60 {
				currentStatus = 0
			}
		} else {
			// next event is a sunset, it is light now
			if nowEpoch > next.Sunset+int64(c.sunriseOffset)*60 {
				currentStatus = 0
			}
		}
	}

	if c.sunStatus == currentStatus {
		success()
	} else {
		failure()
	}
}

func locationOrUTC(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("Unknown timezone %q, falling back to UTC", name)
		return time.UTC
	}
	return loc
}
