// Package `replicate` copies backup artifacts to local directories and to
// remote `scp` endpoints.  Destinations are independent: a failure at one
// destination is reported in its `Outcome` and does not stop the others.
package replicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/nogproject/luks-header-backup/backend/internal/lukshdr"
	"github.com/nogproject/luks-header-backup/backend/pkg/execx"
	"golang.org/x/sync/errgroup"
)

type Logger interface {
	Infow(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// `Destination` is either `Local` or `Remote`.
type Destination interface {
	fmt.Stringer
	isDestination()
}

// `Local` is a directory on a locally mounted filesystem.
type Local struct {
	Dir string
}

// `Remote` is an scp target, like `root@backup:/srv/luks/`, which is passed
// to scp verbatim.
type Remote struct {
	Endpoint string
}

func (Local) isDestination()  {}
func (Remote) isDestination() {}

func (d Local) String() string  { return "local:" + d.Dir }
func (d Remote) String() string { return "remote:" + d.Endpoint }

// `Destinations()` combines local directories and remote endpoints, locals
// first.
func Destinations(dirs, endpoints []string) []Destination {
	ds := make([]Destination, 0, len(dirs)+len(endpoints))
	for _, d := range dirs {
		ds = append(ds, Local{Dir: d})
	}
	for _, e := range endpoints {
		ds = append(ds, Remote{Endpoint: e})
	}
	return ds
}

type ReplicationError struct {
	Destination Destination
	Err         error
}

func (err *ReplicationError) Error() string {
	return fmt.Sprintf("failed to replicate to %s: %v", err.Destination, err.Err)
}

func (err *ReplicationError) Unwrap() error {
	return err.Err
}

type Outcome struct {
	Destination Destination
	Err         error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

func AllSucceeded(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Succeeded() {
			return false
		}
	}
	return true
}

// `Failed()` returns the names of the destinations that failed.
func Failed(outcomes []Outcome) []string {
	var names []string
	for _, o := range outcomes {
		if !o.Succeeded() {
			names = append(names, o.Destination.String())
		}
	}
	return names
}

type Replicator struct {
	Lg     Logger
	Runner execx.Runner
	// `Scp` is the path of the scp tool.
	Scp string
	// `Limit` is a bandwidth limit in bytes per second; 0 is unlimited.
	Limit uint64
	// `Jobs` is the number of destinations processed concurrently; values
	// below 1 mean 1.
	Jobs int
}

// `Replicate()` copies all artifacts to every destination and returns one
// outcome per destination, in the order of `dests`.
func (r *Replicator) Replicate(
	ctx context.Context,
	arts []*lukshdr.Artifact,
	dests []Destination,
) []Outcome {
	outcomes := make([]Outcome, len(dests))

	jobs := r.Jobs
	if jobs < 1 {
		jobs = 1
	}
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, d := range dests {
		i, d := i, d
		g.Go(func() error {
			err := r.replicateOne(ctx, arts, d)
			if err != nil {
				err = &ReplicationError{Destination: d, Err: err}
				r.Lg.Errorw(
					"Replication failed.",
					"dest", d.String(),
					"err", err,
				)
			}
			outcomes[i] = Outcome{Destination: d, Err: err}
			// Failures are recorded per destination and must not
			// cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (r *Replicator) replicateOne(
	ctx context.Context, arts []*lukshdr.Artifact, d Destination,
) error {
	switch d := d.(type) {
	case Local:
		r.Lg.Infow("Backing up to local path.", "dest", d.Dir)
		return r.copyLocal(ctx, arts, d.Dir)
	case Remote:
		r.Lg.Infow("Pushing to remote.", "dest", d.Endpoint)
		return r.copyRemote(ctx, arts, d.Endpoint)
	default:
		panic("invalid destination type")
	}
}

// `ScpArgs()` returns the arguments of the single scp call that copies
// `files` to `endpoint`.  Host keys must already be known, and
// authentication must not prompt.
func ScpArgs(files []string, endpoint string, limit uint64) []string {
	args := []string{
		"-o", "StrictHostKeyChecking=yes",
		"-o", "BatchMode=yes",
	}
	if limit > 0 {
		// scp limits in Kbit/s with 1 Kbit = 1024 bit, so
		// `limit * 8 / 1024`, divided first to avoid overflow.
		kbits := limit / 128
		if kbits < 1 {
			kbits = 1
		}
		args = append(args, "-l", fmt.Sprintf("%d", kbits))
	}
	args = append(args, files...)
	return append(args, endpoint)
}

func (r *Replicator) copyRemote(
	ctx context.Context, arts []*lukshdr.Artifact, endpoint string,
) error {
	var files []string
	for _, a := range arts {
		files = append(files, a.Files()...)
	}
	if len(files) == 0 {
		r.Lg.Infow("No artifacts for remote.", "dest", endpoint)
		return nil
	}

	if _, err := r.Runner.Run(
		ctx, r.Scp, ScpArgs(files, endpoint, r.Limit)...,
	); err != nil {
		return err
	}
	r.Lg.Infow(
		"Copy successful.",
		"dest", endpoint,
		"files", strings.Join(files, " "),
	)
	return nil
}
