package api

import "time"

// Timestamps cross the wire as RFC 3339 strings, but dashboard clients
// poll with integer epoch-millisecond cursors. The conversions here are
// lossless at millisecond precision in both directions.

func epochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
