package appointment

import "time"

type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in the clinic's zone. Dates and
// times of day are compared in that zone.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}
