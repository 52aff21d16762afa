package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Montevideo")
	if err != nil {
		panic(err)
	}
}

// UTEC refresh windows and quota resets are all expressed in Uruguayan
// local time, while deployment hosts may run in UTC or elsewhere.
// Everything that calls Year()/Month()/Day()/Hour() must go through here.
func Now() time.Time {
	return time.Now().In(Location)
}
