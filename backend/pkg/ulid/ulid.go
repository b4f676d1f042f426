// Package `ulid` creates run ids from `github.com/oklog/ulid`.  ULIDs sort by
// creation time, so the ids of consecutive backup runs sort like the runs.
package ulid

import (
	crand "crypto/rand"
	"time"

	"github.com/oklog/ulid"
)

// `RunID` is an `oklog/ulid.ULID`.
type RunID = ulid.ULID

func NewRunID() (RunID, error) {
	return ulid.New(ulid.Now(), crand.Reader)
}

// `RunTime()` returns when the run id was created, with millisecond
// precision.
func RunTime(id RunID) time.Time {
	ms := int64(id.Time())
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond))
}
