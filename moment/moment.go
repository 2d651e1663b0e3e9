// Package moment provides the timezone-aware temporal value types used by
// jobtrail: a Moment pairing an absolute instant with an IANA timezone, and
// a Date carrying a bare calendar date with no time or zone component.
//
// A Moment is persisted as two columns (*_datetime in UTC RFC3339,
// *_timezone as the IANA zone name). Both columns are null or both are
// non-null; NullMoment models that pair.
package moment

import (
	"time"

	"github.com/trailhq/jobtrail/errors"
)

// Moment is a composite value: an absolute instant plus the IANA timezone
// in which the candidate expects to see it. The zero Moment is not valid;
// construct via Compose.
type Moment struct {
	instant time.Time
	zone    string
}

// Compose builds a Moment from an absolute instant and an IANA timezone
// name. Fails with errors.ErrInvalidTimezone when the name is empty or not
// a known IANA identifier.
func Compose(instant time.Time, tzName string) (Moment, error) {
	if tzName == "" {
		return Moment{}, errors.Wrap(errors.ErrInvalidTimezone, "timezone name is empty")
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Moment{}, errors.Wrapf(errors.ErrInvalidTimezone, "unknown timezone %q", tzName)
	}
	return Moment{instant: instant.In(loc), zone: tzName}, nil
}

// MustCompose is Compose for statically known-good inputs (tests, fixtures).
// Panics on invalid timezone.
func MustCompose(instant time.Time, tzName string) Moment {
	m, err := Compose(instant, tzName)
	if err != nil {
		panic(err)
	}
	return m
}

// Instant returns the absolute instant, localized to the Moment's zone.
func (m Moment) Instant() time.Time {
	return m.instant
}

// Timezone returns the IANA timezone name.
func (m Moment) Timezone() string {
	return m.zone
}

// Decompose splits the Moment back into its two stored fields.
// Round-trip law: Decompose(Compose(instant, tz)) yields an instant equal
// to the input and the identical zone name.
func Decompose(m Moment) (time.Time, string) {
	return m.instant, m.zone
}

// Before reports whether m's instant is before other's instant.
// Comparison is by absolute time; the zones play no part.
func (m Moment) Before(other Moment) bool {
	return m.instant.Before(other.instant)
}

// After reports whether m's instant is after other's instant.
func (m Moment) After(other Moment) bool {
	return m.instant.After(other.instant)
}

// Equal reports whether two Moments share the same instant and zone name.
func (m Moment) Equal(other Moment) bool {
	return m.zone == other.zone && m.instant.Equal(other.instant)
}

// IsZero reports whether the Moment is the unset zero value.
func (m Moment) IsZero() bool {
	return m.zone == "" && m.instant.IsZero()
}
