package entity

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConnected_InclusiveBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("connected iff elapsed <= timespan", prop.ForAll(
		func(elapsedSec, timespanSec int64) bool {
			now := base.Add(time.Duration(elapsedSec) * time.Second)
			timespan := time.Duration(timespanSec) * time.Second
			return Connected(base, now, timespan) == (elapsedSec <= timespanSec)
		},
		gen.Int64Range(-3600, 86400),
		gen.Int64Range(0, 86400),
	))

	properties.Property("exactly at the timespan is connected", prop.ForAll(
		func(timespanSec int64) bool {
			timespan := time.Duration(timespanSec) * time.Second
			return Connected(base, base.Add(timespan), timespan)
		},
		gen.Int64Range(0, 86400),
	))

	properties.Property("unknown last seen is never connected", prop.ForAll(
		func(timespanSec int64) bool {
			return !Connected(time.Time{}, base, time.Duration(timespanSec)*time.Second)
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}
