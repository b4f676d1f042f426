// Package `backupcfg` loads the optional YAML config file of
// `luks-header-backup`, like:
//
// ```
// backupPaths:
//   - /mnt/usb/luks-headers
// remotePaths:
//   - root@backup.example.com:/srv/luks-headers/
// limit: 10m
// jobs: 2
// lockFile: /run/lock/luks-header-backup.lock
// ```
//
// Command line values are merged into it with `Merge()`.
package backupcfg

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

type File struct {
	BackupPaths []string `yaml:"backupPaths"`
	RemotePaths []string `yaml:"remotePaths"`
	Limit       string   `yaml:"limit"`
	Jobs        int      `yaml:"jobs"`
	LockFile    string   `yaml:"lockFile"`
}

// `Settings` are the effective values after merging.
type Settings struct {
	BackupPaths []string
	RemotePaths []string
	Limit       uint64
	Jobs        int
	LockFile    string
}

// `Flags` are the command line values.  Empty strings and zero mean unset.
type Flags struct {
	BackupPaths []string
	RemotePaths []string
	Limit       string
	Jobs        int
	LockFile    string
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config `%s`: %w", path, err)
	}
	return f, nil
}

// `Merge()` appends the command line paths to the file paths.  Scalars from
// the command line override the file.  `f` may be nil.
func Merge(f *File, fl Flags) (*Settings, error) {
	if f == nil {
		f = &File{}
	}

	s := &Settings{
		BackupPaths: append(append([]string(nil), f.BackupPaths...), fl.BackupPaths...),
		RemotePaths: append(append([]string(nil), f.RemotePaths...), fl.RemotePaths...),
		Jobs:        f.Jobs,
		LockFile:    f.LockFile,
	}

	limit := f.Limit
	if fl.Limit != "" {
		limit = fl.Limit
	}
	if limit != "" {
		v, err := ParseBandwidth(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid limit: %w", err)
		}
		s.Limit = v
	}

	if fl.Jobs != 0 {
		s.Jobs = fl.Jobs
	}
	if s.Jobs == 0 {
		s.Jobs = 1
	}
	if s.Jobs < 0 {
		return nil, fmt.Errorf("jobs must be positive, got %d", s.Jobs)
	}

	if fl.LockFile != "" {
		s.LockFile = fl.LockFile
	}

	return s, nil
}

var siMap = map[string]uint64{
	"k": 1 << 10,
	"m": 1 << 20,
	"g": 1 << 30,
	"t": 1 << 40,
}

// `ParseBandwidth()` parses bytes per second with optional binary suffix
// `k`, `m`, `g`, or `t`.
func ParseBandwidth(s string) (uint64, error) {
	orig := s
	s = strings.ToLower(s)

	m := uint64(1)
	for suf, mult := range siMap {
		if strings.HasSuffix(s, suf) {
			m = mult
			s = s[0 : len(s)-len(suf)]
			break
		}
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		err := fmt.Errorf("must be positive, got %d", v)
		return 0, err
	}

	if uint64(v) > math.MaxUint64/m {
		err := fmt.Errorf("bandwidth `%s` out of range", orig)
		return 0, err
	}

	return uint64(v) * m, nil
}
