package blkid_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/nogproject/luks-header-backup/backend/internal/blkid"
	"github.com/nogproject/luks-header-backup/backend/pkg/execx"
	"github.com/nogproject/luks-header-backup/backend/pkg/execx/execxtest"
	"github.com/nogproject/luks-header-backup/backend/pkg/mulog"
	"github.com/stretchr/testify/require"
)

const sampleExport = `
DEVNAME=/dev/sda1
UUID=12345678-1234-1234-1234-123456789abc
TYPE=crypto_LUKS

DEVNAME=/dev/sda2
UUID=abcdef12-3456-7890-abcd-ef1234567890
TYPE=ext4

DEVNAME=/dev/sdb1
UUID=87654321-4321-4321-4321-876543210fed
TYPE=crypto_LUKS
`

func TestParseSelectsLUKS(t *testing.T) {
	vols := blkid.Parse(mulog.Printer{W: &bytes.Buffer{}}, sampleExport)
	require.Equal(t, map[string]string{
		"/dev/sda1": "12345678-1234-1234-1234-123456789abc",
		"/dev/sdb1": "87654321-4321-4321-4321-876543210fed",
	}, vols)
}

func TestParseEmpty(t *testing.T) {
	vols := blkid.Parse(mulog.Printer{W: &bytes.Buffer{}}, "")
	require.NotNil(t, vols)
	require.Len(t, vols, 0)
}

func TestParseMissingUUIDWarns(t *testing.T) {
	var buf bytes.Buffer
	malformed := "DEVNAME=/dev/sdc1\nTYPE=crypto_LUKS\n\nINVALID"
	vols := blkid.Parse(mulog.Printer{W: &buf}, malformed)
	require.Len(t, vols, 0)
	require.Contains(t, buf.String(), "warning: Found LUKS device but missing")
}

func TestParseMissingDevnameWarns(t *testing.T) {
	var buf bytes.Buffer
	txt := "UUID=12345678-1234-1234-1234-123456789abc\nTYPE=crypto_LUKS\n"
	vols := blkid.Parse(mulog.Printer{W: &buf}, txt)
	require.Len(t, vols, 0)
	require.Contains(t, buf.String(), "missing DEVNAME or UUID")
}

func TestParseValueWithEquals(t *testing.T) {
	txt := "DEVNAME=/dev/sdd1\nLABEL=a=b\nUUID=12345678-1234-1234-1234-123456789abc\nTYPE=crypto_LUKS\n"
	vols := blkid.Parse(mulog.Printer{W: &bytes.Buffer{}}, txt)
	require.Equal(t, "12345678-1234-1234-1234-123456789abc", vols["/dev/sdd1"])
}

func TestParseCRLF(t *testing.T) {
	txt := "DEVNAME=/dev/sde1\r\nUUID=12345678-1234-1234-1234-123456789abc\r\nTYPE=crypto_LUKS\r\n"
	vols := blkid.Parse(mulog.Printer{W: &bytes.Buffer{}}, txt)
	require.Equal(t, map[string]string{
		"/dev/sde1": "12345678-1234-1234-1234-123456789abc",
	}, vols)
}

func TestParseDuplicateDeviceLastWins(t *testing.T) {
	txt := "DEVNAME=/dev/sda1\nUUID=aaaaaaaa-1234-1234-1234-123456789abc\nTYPE=crypto_LUKS\n\n" +
		"DEVNAME=/dev/sda1\nUUID=bbbbbbbb-1234-1234-1234-123456789abc\nTYPE=crypto_LUKS\n"
	vols := blkid.Parse(mulog.Printer{W: &bytes.Buffer{}}, txt)
	require.Equal(t, map[string]string{
		"/dev/sda1": "bbbbbbbb-1234-1234-1234-123456789abc",
	}, vols)
}

func TestParseNonCanonicalUUIDKept(t *testing.T) {
	var buf bytes.Buffer
	txt := "DEVNAME=/dev/sde1\nUUID=not-a-uuid\nTYPE=crypto_LUKS\n"
	vols := blkid.Parse(mulog.Printer{W: &buf}, txt)
	require.Equal(t, "not-a-uuid", vols["/dev/sde1"])
	require.Contains(t, buf.String(), "non-canonical UUID")
}

func TestSortedVolumes(t *testing.T) {
	vs := blkid.SortedVolumes(map[string]string{
		"/dev/sdb1": "bbbb",
		"/dev/sda1": "cccc",
		"/dev/sdc1": "aaaa",
	})
	require.Equal(t, []blkid.Volume{
		{DevPath: "/dev/sdc1", UUID: "aaaa"},
		{DevPath: "/dev/sdb1", UUID: "bbbb"},
		{DevPath: "/dev/sda1", UUID: "cccc"},
	}, vs)
}

func TestDiscoverRunsExport(t *testing.T) {
	fake := execxtest.New()
	fake.Handle("blkid", func(args []string) (*execx.Result, error) {
		return execxtest.OK(sampleExport)
	})

	ctx := context.Background()
	lg := mulog.Printer{W: &bytes.Buffer{}}
	vols, err := blkid.Discover(ctx, lg, fake, "blkid")
	require.NoError(t, err)
	require.Len(t, vols, 2)
	require.Equal(t, []execxtest.Call{
		{Program: "blkid", Args: []string{"-o", "export"}},
	}, fake.Calls())
}

func TestDiscoverNothingFound(t *testing.T) {
	fake := execxtest.New()
	fake.Handle("blkid", func(args []string) (*execx.Result, error) {
		return execxtest.Exit(2, "")
	})

	lg := mulog.Printer{W: &bytes.Buffer{}}
	vols, err := blkid.Discover(context.Background(), lg, fake, "blkid")
	require.NoError(t, err)
	require.Len(t, vols, 0)
}

func TestDiscoverFailures(t *testing.T) {
	lg := mulog.Printer{W: &bytes.Buffer{}}
	ctx := context.Background()

	fake := execxtest.New()
	_, err := blkid.Discover(ctx, lg, fake, "blkid")
	var derr *blkid.DiscoveryError
	require.True(t, errors.As(err, &derr))
	var perr *execx.ProcessError
	require.True(t, errors.As(err, &perr))

	fake.Handle("blkid", func(args []string) (*execx.Result, error) {
		return execxtest.Exit(4, "usage error")
	})
	_, err = blkid.Discover(ctx, lg, fake, "blkid")
	require.True(t, errors.As(err, &derr))
	require.Contains(t, err.Error(), "usage error")

	fake.Handle("blkid", func(args []string) (*execx.Result, error) {
		return execxtest.OK("DEVNAME=\xff\xfe\n")
	})
	_, err = blkid.Discover(ctx, lg, fake, "blkid")
	require.True(t, errors.Is(err, blkid.ErrNotUTF8))
}
