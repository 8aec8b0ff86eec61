package suncalc

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// RiseSet holds sunrise and sunset as UTC epochs. A zero value means the
// event does not occur within the queried window (polar night or day).
type RiseSet struct {
	Sunrise int64
	Sunset  int64
}

// Calculator computes sunrise and sunset times for a location.
type Calculator struct{}

// New creates a new Calculator
func New() *Calculator {
	return &Calculator{}
}

// Riseset returns sunrise and sunset for the UTC day containing utc.
func (c *Calculator) Riseset(utc int64, latitude, longitude float64) RiseSet {
	day := time.Unix(utc, 0).UTC()
	rise, set := sunrise.SunriseSunset(latitude, longitude, day.Year(), day.Month(), day.Day())

	var rs RiseSet
	if !rise.IsZero() {
		rs.Sunrise = rise.Unix()
	}
	if !set.IsZero() {
		rs.Sunset = set.Unix()
	}
	return rs
}

// NextRiseSet returns the next sunrise and the next sunset at or after utc,
// scanning forward day by day. At polar latitudes the next event can be
// months away, so the scan is capped at one year.
func (c *Calculator) NextRiseSet(utc int64, latitude, longitude float64) RiseSet {
	var rs RiseSet
	day := time.Unix(utc, 0).UTC()

	for i := 0; i < 366 && (rs.Sunrise == 0 || rs.Sunset == 0); i++ {
		d := day.AddDate(0, 0, i)
		rise, set := sunrise.SunriseSunset(latitude, longitude, d.Year(), d.Month(), d.Day())
		if rs.Sunrise == 0 && !rise.IsZero() && rise.Unix() >= utc {
			rs.Sunrise = rise.Unix()
		}
		if rs.Sunset == 0 && !set.IsZero() && set.Unix() >= utc {
			rs.Sunset = set.Unix()
		}
	}
	return rs
}
