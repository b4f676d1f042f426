// Package `ratelimit` wraps the subset of `github.com/juju/ratelimit` that is
// used to throttle artifact copies.
package ratelimit

import (
	"io"

	"github.com/juju/ratelimit"
)

type Bucket = ratelimit.Bucket

// funcs
var NewBucketWithRate = ratelimit.NewBucketWithRate

// `Capacity` is the burst size in bytes.
const Capacity = 1024 * 1024

// `NewReader()` returns `r` limited to `bytesPerSec`.  A zero rate disables
// the limit and returns `r` itself.
func NewReader(r io.Reader, bytesPerSec uint64) io.Reader {
	if bytesPerSec == 0 {
		return r
	}
	return ratelimit.Reader(r, NewBucketWithRate(float64(bytesPerSec), Capacity))
}
