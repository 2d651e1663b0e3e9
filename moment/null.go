package moment

import (
	"database/sql"
	"time"

	"github.com/trailhq/jobtrail/errors"
)

// columnTimeLayout is the storage format for the *_datetime column.
// Instants are normalized to UTC before persistence so the stored strings
// sort lexicographically in instant order; the zone lives in the companion
// *_timezone column. Sub-second precision is intentionally dropped to keep
// the strings fixed-width.
const columnTimeLayout = time.RFC3339

// NullMoment models the nullable two-column pair backing a Moment.
// Invariant: both columns null (Valid=false) or both non-null (Valid=true).
type NullMoment struct {
	Moment Moment
	Valid  bool
}

// SomeMoment wraps a Moment into a valid NullMoment.
func SomeMoment(m Moment) NullMoment {
	return NullMoment{Moment: m, Valid: true}
}

// Columns decomposes the pair into driver values for the two columns.
// A null NullMoment clears both fields.
func (nm NullMoment) Columns() (datetime interface{}, timezone interface{}) {
	if !nm.Valid {
		return nil, nil
	}
	return nm.Moment.instant.UTC().Format(columnTimeLayout), nm.Moment.zone
}

// ScanMomentColumns reconstructs a NullMoment from the two scanned columns.
// One-sided nulls violate the storage invariant and are rejected.
func ScanMomentColumns(datetime sql.NullString, timezone sql.NullString) (NullMoment, error) {
	if !datetime.Valid && !timezone.Valid {
		return NullMoment{}, nil
	}
	if datetime.Valid != timezone.Valid {
		return NullMoment{}, errors.Newf(
			"moment column pair is half-null: datetime valid=%t, timezone valid=%t",
			datetime.Valid, timezone.Valid)
	}

	instant, err := time.Parse(columnTimeLayout, datetime.String)
	if err != nil {
		return NullMoment{}, errors.Wrapf(err, "parse moment datetime %q", datetime.String)
	}

	m, err := Compose(instant, timezone.String)
	if err != nil {
		return NullMoment{}, errors.Wrapf(err, "compose stored moment")
	}
	return SomeMoment(m), nil
}
