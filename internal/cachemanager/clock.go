package cachemanager

import "time"

// Clock abstracts time.Now so freshness can be tested with a fake clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
