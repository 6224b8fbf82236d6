// Package timemath provides calendar to Julian-Date conversions and related
// helpers used for GNSS epoch bookkeeping.
package timemath

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// JDMJD0 is the Julian Date of the MJD epoch 1858-11-17 00:00 UTC.
const JDMJD0 = 2400000.5

// ErrTimeFormat is returned for numeric input that cannot represent a time.
var ErrTimeFormat = errors.New("timemath: invalid time value")

// JD returns the Julian Date for t.
func JD(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	y, m := year, int(month)

	decimalDay := float64(day) + float64(t.Hour())/24 + float64(t.Minute())/1440 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/86400

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(float64(y) / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*float64(y+4716)) + math.Floor(30.6001*float64(m+1)) + decimalDay + b - 1524.5
}

// MJD returns the Modified Julian Date for t.
func MJD(t time.Time) float64 {
	return JD(t) - JDMJD0
}

// TimeFromJD returns the UTC time for the Julian Date jd.
func TimeFromJD(jd float64) (time.Time, error) {
	if math.IsNaN(jd) || math.IsInf(jd, 0) {
		return time.Time{}, fmt.Errorf("%w: jd %v", ErrTimeFormat, jd)
	}

	jd += 0.5
	z := math.Floor(jd)
	f := jd - z

	alpha := math.Floor((z - 1867216.25) / 36524.25)
	a := z + 1 + alpha - math.Floor(alpha/4)

	b := a + 1524
	c := math.Floor((b - 122.1) / 365.25)
	d := math.Floor(365.25 * c)
	e := math.Floor((b - d) / 30.6001)

	day := b - d - math.Floor(30.6001*e) + f

	var month int
	if e < 13.5 {
		month = int(e) - 1
	} else {
		month = int(e) - 13
	}

	var year int
	if month > 2 {
		year = int(c) - 4716
	} else {
		year = int(c) - 4715
	}

	dayInt := math.Floor(day)
	// Round the day fraction to the nearest microsecond so that a round trip
	// through JD is exact to the second.
	us := math.Round((day - dayInt) * 86400 * 1e6)

	t := time.Date(year, time.Month(month), int(dayInt), 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration(us) * time.Microsecond), nil
}

// TimeFromMJD returns the UTC time for the Modified Julian Date mjd.
func TimeFromMJD(mjd float64) (time.Time, error) {
	return TimeFromJD(mjd + JDMJD0)
}

// SecondsOfDay returns the seconds elapsed since midnight, including the
// fractional part.
func SecondsOfDay(t time.Time) float64 {
	return float64(t.Hour())*3600 + float64(t.Minute())*60 + float64(t.Second()) + float64(t.Nanosecond())/1e9
}

// ResolveTwoDigitYear maps a two-digit year as used in RINEX-2 files to the
// full year: 0-79 becomes 2000-2079, 80-99 becomes 1980-1999.
func ResolveTwoDigitYear(yy int) (int, error) {
	switch {
	case yy >= 0 && yy <= 79:
		return 2000 + yy, nil
	case yy >= 80 && yy <= 99:
		return 1900 + yy, nil
	}
	return 0, fmt.Errorf("%w: two-digit year %d", ErrTimeFormat, yy)
}
