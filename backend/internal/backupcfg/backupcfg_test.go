package backupcfg_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nogproject/luks-header-backup/backend/internal/backupcfg"
	"github.com/stretchr/testify/require"
)

const sampleYml = `
backupPaths:
  - /mnt/usb/luks
remotePaths:
  - root@backup:/srv/luks/
limit: 10m
jobs: 2
lockFile: /run/lock/lhb.lock
`

func TestLoadAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYml), 0600))

	f, err := backupcfg.Load(path)
	require.NoError(t, err)

	s, err := backupcfg.Merge(f, backupcfg.Flags{
		BackupPaths: []string{"/var/backups/luks"},
		RemotePaths: []string{"root@other:/srv/"},
	})
	require.NoError(t, err)
	require.Equal(t, &backupcfg.Settings{
		BackupPaths: []string{"/mnt/usb/luks", "/var/backups/luks"},
		RemotePaths: []string{"root@backup:/srv/luks/", "root@other:/srv/"},
		Limit:       10 << 20,
		Jobs:        2,
		LockFile:    "/run/lock/lhb.lock",
	}, s)
}

func TestMergeFlagsOverride(t *testing.T) {
	f, err := backupcfg.Parse([]byte(sampleYml))
	require.NoError(t, err)

	s, err := backupcfg.Merge(f, backupcfg.Flags{
		Limit:    "512k",
		Jobs:     4,
		LockFile: "/tmp/x.lock",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(512<<10), s.Limit)
	require.Equal(t, 4, s.Jobs)
	require.Equal(t, "/tmp/x.lock", s.LockFile)
}

func TestMergeWithoutFile(t *testing.T) {
	s, err := backupcfg.Merge(nil, backupcfg.Flags{
		BackupPaths: []string{"/b"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"/b"}, s.BackupPaths)
	require.Len(t, s.RemotePaths, 0)
	require.Equal(t, uint64(0), s.Limit)
	require.Equal(t, 1, s.Jobs)
}

func TestMergeInvalid(t *testing.T) {
	_, err := backupcfg.Merge(nil, backupcfg.Flags{Limit: "fast"})
	require.Error(t, err)
	_, err = backupcfg.Merge(nil, backupcfg.Flags{Jobs: -1})
	require.Error(t, err)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := backupcfg.Parse([]byte("backupPath: /typo\n"))
	require.Error(t, err)
}

func TestParseBandwidth(t *testing.T) {
	for _, c := range []struct {
		in  string
		out uint64
	}{
		{"0", 0},
		{"100", 100},
		{"1k", 1024},
		{"2M", 2 << 20},
		{"1g", 1 << 30},
		{"1t", 1 << 40},
	} {
		v, err := backupcfg.ParseBandwidth(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.out, v, c.in)
	}

	_, err := backupcfg.ParseBandwidth("-1k")
	require.Error(t, err)
	_, err = backupcfg.ParseBandwidth("k")
	require.Error(t, err)
}

func TestParseBandwidthOverflow(t *testing.T) {
	v, err := backupcfg.ParseBandwidth("16777215t")
	require.NoError(t, err)
	require.Equal(t, uint64(16777215)<<40, v)

	for _, in := range []string{"16777216t", "20000000t", "17179869184g"} {
		_, err := backupcfg.ParseBandwidth(in)
		require.Error(t, err, in)
		require.Contains(t, err.Error(), "out of range", in)
	}
}
