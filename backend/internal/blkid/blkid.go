// Package `blkid` discovers LUKS volumes by parsing `blkid -o export`.
package blkid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nogproject/luks-header-backup/backend/pkg/execx"
	"github.com/nogproject/luks-header-backup/backend/pkg/uuid"
)

// `TypeLUKS` is the `TYPE` that blkid reports for LUKS volumes.
const TypeLUKS = "crypto_LUKS"

// blkid exits with 2 if it could not identify any device.
const exitNothingFound = 2

type Logger interface {
	Debugw(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
}

type DiscoveryError struct {
	What string
	Err  error
}

func (err *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to discover LUKS devices: %s: %v", err.What, err.Err)
}

func (err *DiscoveryError) Unwrap() error {
	return err.Err
}

var ErrNotUTF8 = errors.New("output is not valid UTF-8")

type Volume struct {
	DevPath string
	UUID    string
}

// `Discover()` runs `blkidTool -o export` and returns a map from device path
// to UUID of the LUKS volumes.  An empty map is not an error.
func Discover(
	ctx context.Context, lg Logger, runner execx.Runner, blkidTool string,
) (map[string]string, error) {
	res, err := runner.Run(ctx, blkidTool, "-o", "export")
	if err != nil {
		if res != nil && res.ExitCode == exitNothingFound &&
			len(res.Stdout) == 0 {
			lg.Debugw("blkid found no devices.")
			return map[string]string{}, nil
		}
		return nil, &DiscoveryError{What: "blkid", Err: err}
	}

	if !utf8.Valid(res.Stdout) {
		return nil, &DiscoveryError{What: "blkid output", Err: ErrNotUTF8}
	}

	return Parse(lg, string(res.Stdout)), nil
}

// `Parse()` extracts LUKS volumes from blkid export text.  Records are
// separated by blank lines and contain `KEY=value` lines.  Records of type
// `crypto_LUKS` that lack `DEVNAME` or `UUID` are skipped with a warning.
func Parse(lg Logger, txt string) map[string]string {
	vols := make(map[string]string)
	for _, seg := range strings.Split(txt, "\n\n") {
		rec := parseRecord(seg)
		if rec["TYPE"] != TypeLUKS {
			continue
		}

		dev, hasDev := rec["DEVNAME"]
		id, hasUUID := rec["UUID"]
		if !hasDev || !hasUUID {
			lg.Warnw(
				"Found LUKS device but missing DEVNAME or UUID.",
				"record", rec,
			)
			continue
		}
		if !uuid.IsCanonical(id) {
			lg.Warnw(
				"LUKS device has non-canonical UUID.",
				"device", dev,
				"uuid", id,
			)
		}

		vols[dev] = id
		lg.Debugw("Found LUKS device.", "device", dev, "uuid", id)
	}
	return vols
}

func parseRecord(seg string) map[string]string {
	rec := make(map[string]string)
	for _, line := range strings.Split(seg, "\n") {
		line = strings.TrimSuffix(line, "\r")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		rec[k] = v
	}
	return rec
}

// `SortedVolumes()` returns the volumes ordered by UUID, then device path,
// so that runs process devices in a reproducible order.
func SortedVolumes(vols map[string]string) []Volume {
	vs := make([]Volume, 0, len(vols))
	for dev, id := range vols {
		vs = append(vs, Volume{DevPath: dev, UUID: id})
	}
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].UUID != vs[j].UUID {
			return vs[i].UUID < vs[j].UUID
		}
		return vs[i].DevPath < vs[j].DevPath
	})
	return vs
}
