package clock

import "time"

const dayLayout = "2006-01-02"

func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// Day returns the UTC calendar day key for a timestamp, formatted
// YYYY-MM-DD. The daily ledger is keyed by these values.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Today returns the current UTC day key.
func Today() string {
	return Day(time.Now())
}

// DaysBack returns the day key n days before t (n=0 is t's own day).
func DaysBack(t time.Time, n int) string {
	return Day(t.AddDate(0, 0, -n))
}
