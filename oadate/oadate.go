// Package oadate converts OLE-automation date serials (floating-point days
// since a fixed epoch) into civil date/time values.
//
// Excel stores dates as serial numbers in one of two systems.  The default
// 1900 system counts days from 1899-12-30 and perpetuates the Lotus 1-2-3
// bug of treating 1900 as a leap year: serial 60 displays as 1900-02-29, a
// day that never existed.  The 1904 system counts days from 1904-01-01 and
// has no phantom day.
//
// Because 1900-02-29 cannot be represented by time.Time, a converted value
// carries the phantom day separately: [Date.Time] holds the real calendar
// instant and [Date.AdjustDaysPost] holds the day-of-month correction that
// reproduces what Excel displays.  Use the civil accessors (Year, Month,
// Day, …) rather than reading Time directly when the displayed value
// matters.
package oadate

import (
	"fmt"
	"math"
	"time"
)

const millisPerDay = 86_400_000

// days1904Offset is the distance in days between the 1904 epoch
// (1904-01-01) and the 1900-system base date (1899-12-30).
const days1904Offset = 1462.0

// maxSerial is the exclusive upper bound on supported serials: one above
// Excel's last valid serial, 2,958,465 (9999-12-31).
const maxSerial = 2_958_466

var (
	base1899 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	day1231  = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	dayFeb28 = time.Date(1900, 2, 28, 0, 0, 0, 0, time.UTC)
	dayMar01 = time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)
)

// Date is a converted serial.  Time is the real calendar instant;
// AdjustDaysPost (-1, 0, or +1) is added to the reported day-of-month only,
// never to Time itself, so that serials inside the 1900 leap-bug window
// display exactly as Excel shows them.
type Date struct {
	Time           time.Time
	AdjustDaysPost int
}

// FromSerial converts the OLE serial d to a Date.
//
// In the 1904 system d+1462 is treated as days since 1899-12-30 and no
// further correction applies.  In the 1900 system the civil fields are
// computed from the raw instant and then shifted per the leap-bug
// compensation windows around 1900-02-29.
func FromSerial(d float64, date1904 bool) (Date, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return Date{}, fmt.Errorf("oadate: invalid serial %v", d)
	}
	if d >= maxSerial || d < -maxSerial {
		return Date{}, fmt.Errorf("oadate: serial %v out of range", d)
	}
	if date1904 {
		d += days1904Offset
	}

	millis := roundHalfAway(d * millisPerDay)
	if millis < 0 {
		// OLE convention: the integer part is a signed day offset but the
		// fraction is always a positive time-of-day.  Mirror the fraction.
		millis -= (millis % millisPerDay) * 2
	}
	t := base1899.Add(time.Duration(millis) * time.Millisecond)

	if date1904 {
		return Date{Time: t}, nil
	}

	// 1900 system: compensation windows keyed on the raw internal instant.
	switch {
	case t.Before(base1899):
		return Date{Time: t.AddDate(0, 0, 2)}, nil
	case t.Before(day1231):
		return Date{Time: t.AddDate(0, 0, 2), AdjustDaysPost: -1}, nil
	case t.Before(dayFeb28):
		return Date{Time: t.AddDate(0, 0, 1)}, nil
	case t.Before(dayMar01):
		return Date{Time: t, AdjustDaysPost: 1}, nil
	default:
		return Date{Time: t}, nil
	}
}

// roundHalfAway rounds to the nearest integer with halves away from zero.
func roundHalfAway(x float64) int64 {
	if x >= 0 {
		return int64(math.Floor(x + 0.5))
	}
	return int64(math.Ceil(x - 0.5))
}

// Year returns the civil year.
func (d Date) Year() int { return d.Time.Year() }

// Month returns the civil month.
func (d Date) Month() time.Month { return d.Time.Month() }

// Day returns the reported day-of-month, including the leap-bug shift.
// Serial 60 in the 1900 system reports day 29 while Time holds Feb 28.
func (d Date) Day() int { return d.Time.Day() + d.AdjustDaysPost }

// Hour returns the civil hour.
func (d Date) Hour() int { return d.Time.Hour() }

// Minute returns the civil minute.
func (d Date) Minute() int { return d.Time.Minute() }

// Second returns the civil second.
func (d Date) Second() int { return d.Time.Second() }

// Millisecond returns the sub-second component in milliseconds.
func (d Date) Millisecond() int { return d.Time.Nanosecond() / 1e6 }

// String renders the reported civil value as "yyyy-mm-dd hh:mm:ss".  It is
// built from the civil accessors rather than Time.Format so that the
// phantom 1900-02-29 prints as Excel displays it.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		d.Year(), int(d.Month()), d.Day(), d.Hour(), d.Minute(), d.Second())
}

// Serial converts the reported civil value back to its 1900-system serial.
// It is the inverse of FromSerial for the 1900 path, modulo millisecond
// quantisation, including the phantom leap day (1900-02-29 maps to 60).
func (d Date) Serial() float64 {
	frac := float64(d.Hour()*3600_000+d.Minute()*60_000+d.Second()*1000+d.Millisecond()) / millisPerDay

	y, mo, dd := d.Year(), int(d.Month()), d.Day()
	if y == 1900 && mo == 2 && dd == 29 {
		return 60 + frac
	}
	civil := time.Date(y, time.Month(mo), dd, 0, 0, 0, 0, time.UTC)
	days := int(civil.Sub(day1231).Hours() / 24)
	if civil.Before(dayMar01) {
		// Before the phantom day the serial is one less than the distance
		// from the 1900-system base.
		return float64(days) + frac
	}
	return float64(days+1) + frac
}
