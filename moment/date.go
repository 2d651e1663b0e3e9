package moment

import (
	"database/sql"
	"time"

	"github.com/trailhq/jobtrail/errors"
)

// dateLayout is the storage format for date-only columns.
const dateLayout = "2006-01-02"

// Date is a calendar date with no time and no timezone component.
// Equality is by calendar date (the struct is comparable), never by instant.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current calendar date in the given location.
// A nil location defaults to UTC.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, errors.Wrapf(err, "parse date %q", s)
	}
	return DateOf(t), nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time(time.UTC).Format(dateLayout)
}

// Time returns midnight of the date in the given location.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// IsZero reports whether the Date is the unset zero value.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Before reports whether d is an earlier calendar date than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// NullDate models a nullable date-only column.
type NullDate struct {
	Date  Date
	Valid bool
}

// SomeDate wraps a Date into a valid NullDate.
func SomeDate(d Date) NullDate {
	return NullDate{Date: d, Valid: true}
}

// Column returns the driver value for the date column.
func (nd NullDate) Column() interface{} {
	if !nd.Valid {
		return nil
	}
	return nd.Date.String()
}

// ScanDateColumn reconstructs a NullDate from a scanned column.
func ScanDateColumn(col sql.NullString) (NullDate, error) {
	if !col.Valid {
		return NullDate{}, nil
	}
	d, err := ParseDate(col.String)
	if err != nil {
		return NullDate{}, err
	}
	return SomeDate(d), nil
}
