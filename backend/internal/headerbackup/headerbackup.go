// Package `headerbackup` runs a complete LUKS header backup: discover LUKS
// volumes, build header artifacts in a private staging directory, and
// replicate them to all destinations.
//
// A run either builds artifacts for all discovered devices or replicates
// nothing.  Replication failures are isolated per destination and reported
// together at the end.
package headerbackup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nogproject/luks-header-backup/backend/internal/blkid"
	"github.com/nogproject/luks-header-backup/backend/internal/lukshdr"
	"github.com/nogproject/luks-header-backup/backend/internal/replicate"
	"github.com/nogproject/luks-header-backup/backend/pkg/execx"
	"github.com/nogproject/luks-header-backup/backend/pkg/flock"
	"github.com/nogproject/luks-header-backup/backend/pkg/ulid"
	"golang.org/x/sys/unix"
)

var ErrNoVolumes = errors.New(
	"expected to find at least one LUKS device to back up",
)
var ErrNoDestinations = errors.New(
	"at least one backup path or remote path is required",
)

// `PrivilegeError` means that the process cannot read raw device headers.
type PrivilegeError struct {
	Euid int
}

func (err *PrivilegeError) Error() string {
	return fmt.Sprintf("must be run as root, effective uid is %d", err.Euid)
}

// `ReplicationFailedError` lists the destinations that failed.
type ReplicationFailedError struct {
	Failed []string
}

func (err *ReplicationFailedError) Error() string {
	return fmt.Sprintf(
		"replication failed for %d destination(s): %s",
		len(err.Failed), strings.Join(err.Failed, ", "),
	)
}

type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// `Tools` are the paths of the external programs.
type Tools struct {
	Blkid      string
	Cryptsetup string
	Scp        string
}

func DefaultTools() Tools {
	return Tools{
		Blkid:      "blkid",
		Cryptsetup: "cryptsetup",
		Scp:        "scp",
	}
}

const DefaultLockWait = 5 * time.Second

type Config struct {
	Lg     Logger
	Runner execx.Runner
	Tools  Tools

	BackupPaths []string
	RemotePaths []string

	// `Limit` is a bandwidth limit in bytes per second; 0 is unlimited.
	Limit uint64
	// `Jobs` is the number of destinations replicated concurrently.
	Jobs int

	// If `LockPath` is set, the run holds a flock on it and waits at most
	// `LockWait` to acquire it.
	LockPath string
	LockWait time.Duration

	// `TempDir` is the parent of the staging directory; empty means the
	// system default.
	TempDir string

	// Nil means the real system calls.
	Geteuid  func() int
	Hostname func() (string, error)
}

// `Report` summarizes a run.  The artifact paths refer to the staging
// directory, which no longer exists when `Run()` has returned.
type Report struct {
	RunID     string
	Hostname  string
	Artifacts []*lukshdr.Artifact
	Outcomes  []replicate.Outcome
}

func (cfg Config) withDefaults() Config {
	if cfg.Runner == nil {
		cfg.Runner = execx.Exec{}
	}
	def := DefaultTools()
	if cfg.Tools.Blkid == "" {
		cfg.Tools.Blkid = def.Blkid
	}
	if cfg.Tools.Cryptsetup == "" {
		cfg.Tools.Cryptsetup = def.Cryptsetup
	}
	if cfg.Tools.Scp == "" {
		cfg.Tools.Scp = def.Scp
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultLockWait
	}
	if cfg.Geteuid == nil {
		cfg.Geteuid = unix.Geteuid
	}
	if cfg.Hostname == nil {
		cfg.Hostname = os.Hostname
	}
	return cfg
}

// `Run()` performs one backup run.  It returns the report together with the
// error if the run got far enough to have one.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	lg := cfg.Lg

	if euid := cfg.Geteuid(); euid != 0 {
		return nil, &PrivilegeError{Euid: euid}
	}

	hostname, err := cfg.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}

	id, err := ulid.NewRunID()
	if err != nil {
		return nil, fmt.Errorf("failed to create run id: %w", err)
	}
	rep := &Report{RunID: id.String(), Hostname: hostname}
	lg.Infow(
		"Started LUKS header backup.",
		"run", rep.RunID,
		"hostname", hostname,
	)

	if cfg.LockPath != "" {
		unlock, err := lockRun(ctx, cfg.LockPath, cfg.LockWait)
		if err != nil {
			return rep, err
		}
		defer unlock()
	}

	staging, err := os.MkdirTemp(cfg.TempDir, "luks-header-backup-")
	if err != nil {
		return rep, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			lg.Errorw(
				"Failed to remove temp dir.",
				"dir", staging,
				"err", err,
			)
		}
	}()
	if err := os.Chmod(staging, 0700); err != nil {
		return rep, fmt.Errorf("failed to set temp dir permissions: %w", err)
	}
	lg.Debugw("Created temp dir.", "dir", staging)

	vols, err := blkid.Discover(ctx, lg, cfg.Runner, cfg.Tools.Blkid)
	if err != nil {
		return rep, err
	}
	if len(vols) == 0 {
		return rep, ErrNoVolumes
	}
	lg.Infow("Found LUKS devices.", "count", len(vols))

	for _, v := range blkid.SortedVolumes(vols) {
		art, err := lukshdr.Build(
			ctx, lg, cfg.Runner, cfg.Tools.Cryptsetup,
			v.DevPath, v.UUID, hostname, staging,
		)
		if err != nil {
			return rep, err
		}
		rep.Artifacts = append(rep.Artifacts, art)
	}

	dests := replicate.Destinations(cfg.BackupPaths, cfg.RemotePaths)
	if len(dests) == 0 {
		return rep, ErrNoDestinations
	}

	r := &replicate.Replicator{
		Lg:     lg,
		Runner: cfg.Runner,
		Scp:    cfg.Tools.Scp,
		Limit:  cfg.Limit,
		Jobs:   cfg.Jobs,
	}
	rep.Outcomes = r.Replicate(ctx, rep.Artifacts, dests)
	if failed := replicate.Failed(rep.Outcomes); len(failed) > 0 {
		return rep, &ReplicationFailedError{Failed: failed}
	}

	lg.Infow(
		"Backup completed successfully.",
		"run", rep.RunID,
		"devices", len(rep.Artifacts),
		"destinations", len(dests),
		"duration", time.Since(ulid.RunTime(id)).Round(time.Millisecond),
	)
	return rep, nil
}

func lockRun(
	ctx context.Context, path string, wait time.Duration,
) (func(), error) {
	lk, err := flock.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := lk.TryLock(ctx, 500*time.Millisecond); err != nil {
		lk.Close()
		return nil, fmt.Errorf("failed to lock `%s`: %w", path, err)
	}

	return func() {
		_ = lk.Unlock()
		lk.Close()
	}, nil
}
